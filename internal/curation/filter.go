package curation

import (
	"strings"

	"taxEvents/internal/models/domain"
)

// Filter возвращает события, подходящие зрителю, сохраняя порядок.
//
// Онлайн событие или событие без штата подходит всем. Иначе штат события должен входить
// в штаты зрителя, а событие должно делить с ним тег специализации или софта
// либо иметь тег general_tax. Зритель без специализаций и софта получает только general_tax.
func Filter(viewer domain.ViewerProfile, events []domain.Event) []domain.Event {
	states := toSet(viewer.ServiceStates, strings.ToUpper)
	interests := toSet(append(append([]string{}, viewer.Specialties...), viewer.Software...), strings.ToLower)

	result := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if Matches(e, states, interests) {
			result = append(result, e)
		}
	}
	return result
}

// Matches применяет правило отбора к одному событию.
func Matches(e domain.Event, states, interests map[string]bool) bool {
	if e.HasTag(domain.TagVirtual) || e.State == nil {
		return true
	}
	if !states[strings.ToUpper(*e.State)] {
		return false
	}
	if e.HasTag(domain.TagGeneralTax) {
		return true
	}
	for _, tag := range e.Tags {
		if interests[strings.ToLower(tag)] {
			return true
		}
	}
	return false
}

func toSet(values []string, norm func(string) string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		set[norm(v)] = true
	}
	return set
}
