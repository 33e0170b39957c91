package dto

import (
	"encoding/json"
	"fmt"
)

// FlexibleStringSlice принимает при декодировании строку или массив строк.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = arr
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "" {
			*f = []string{s}
		} else {
			*f = nil
		}
		return nil
	}

	return fmt.Errorf("tags: expected string or []string, got %s", string(data))
}

// RawEvent - недоверенный кандидат от LLM, публичной формы, формы администратора или скрапера.
// Проверяется нормализатором.
type RawEvent struct {
	Title       string              `json:"title" validate:"required" description:"Event title"`
	Description string              `json:"description" description:"Short description of the event"`
	StartDate   string              `json:"startDate" validate:"required" description:"Start date, ISO 8601 (YYYY-MM-DD or full timestamp)"`
	EndDate     string              `json:"endDate" description:"End date, ISO 8601, empty if unknown"`
	City        string              `json:"city" description:"City, empty for virtual events"`
	State       string              `json:"state" description:"Two-letter US state code, empty for virtual events"`
	URL         string              `json:"url" validate:"required" description:"Registration or information page URL"`
	Organizer   string              `json:"organizer" description:"Organizing body, e.g. IRS, AICPA, NATP"`
	Tags        FlexibleStringSlice `json:"tags" description:"Lowercase topic slugs, e.g. general_tax, virtual, cpe, ethics"`
}

// EventsStructuredResponseSchema - строгая JSON схема ответа LLM.
type EventsStructuredResponseSchema struct {
	Events []RawEvent `json:"events" description:"Upcoming events for US tax professionals"`
}
