package curation

import (
	"testing"

	"taxEvents/internal/models/domain"

	"github.com/stretchr/testify/assert"
)

func state(s string) *string { return &s }

func event(title string, st *string, tags ...string) domain.Event {
	return domain.Event{Title: title, State: st, Tags: tags}
}

func titles(events []domain.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Title)
	}
	return out
}

func TestFilter(t *testing.T) {
	events := []domain.Event{
		event("virtual", nil, "virtual", "cpe"),
		event("virtual tag with state", state("NY"), "virtual"),
		event("ca general", state("CA"), "general_tax"),
		event("ca irs rep", state("CA"), "irs_representation"),
		event("ca drake", state("CA"), "drake"),
		event("ca crypto", state("CA"), "crypto"),
		event("tx general", state("TX"), "general_tax"),
	}

	tests := []struct {
		name   string
		viewer domain.ViewerProfile
		want   []string
	}{
		{
			name: "specialty and software overlap",
			viewer: domain.ViewerProfile{
				Specialties:   []string{"irs_representation"},
				Software:      []string{"Drake"},
				ServiceStates: []string{"ca"},
			},
			want: []string{"virtual", "virtual tag with state", "ca general", "ca irs rep", "ca drake"},
		},
		{
			name:   "no specialties falls back to general_tax in state",
			viewer: domain.ViewerProfile{ServiceStates: []string{"CA"}},
			want:   []string{"virtual", "virtual tag with state", "ca general"},
		},
		{
			name:   "no states sees only virtual",
			viewer: domain.ViewerProfile{Specialties: []string{"crypto"}},
			want:   []string{"virtual", "virtual tag with state"},
		},
		{
			name: "other state",
			viewer: domain.ViewerProfile{
				Specialties:   []string{"crypto"},
				ServiceStates: []string{"TX"},
			},
			want: []string{"virtual", "virtual tag with state", "tx general"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(Filter(tt.viewer, events)))
		})
	}
}

func TestFilter_VirtualMatchesEveryViewer(t *testing.T) {
	virtual := event("webinar", nil, "virtual")
	viewers := []domain.ViewerProfile{
		{},
		{ServiceStates: []string{"AK"}},
		{Specialties: []string{"estate"}, Software: []string{"lacerte"}, ServiceStates: []string{"FL", "GA"}},
	}
	for _, v := range viewers {
		assert.Len(t, Filter(v, []domain.Event{virtual}), 1)
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	events := []domain.Event{event("a", state("CA"), "crypto"), event("b", nil)}
	before := titles(events)

	Filter(domain.ViewerProfile{ServiceStates: []string{"CA"}}, events)

	assert.Equal(t, before, titles(events))
}
