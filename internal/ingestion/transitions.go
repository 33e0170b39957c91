package ingestion

import "taxEvents/internal/models/domain"

// updatePlan описывает, что повторный приём может изменить в существующей строке.
type updatePlan struct {
	// Details rewrites title, description, dates, location and tags.
	Details bool
	// Promote moves a pending row to approved with trusted link fields.
	Promote bool
}

var (
	detailsOnly = updatePlan{Details: true}
	promote     = updatePlan{Details: true, Promote: true}
)

// reingestTable индексируется текущим статусом модерации и источником новой записи.
// Ни одна запись не возвращает строку в pending_review.
var reingestTable = map[domain.ReviewStatus]map[domain.Source]updatePlan{
	domain.ReviewStatusPending: {
		domain.SourceAIGenerated:    detailsOnly,
		domain.SourceUserSuggestion: detailsOnly,
		domain.SourceCurated:        detailsOnly,
		domain.SourceAdminCreated:   promote,
	},
	domain.ReviewStatusApproved: {
		domain.SourceAIGenerated:    detailsOnly,
		domain.SourceUserSuggestion: detailsOnly,
		domain.SourceCurated:        detailsOnly,
		domain.SourceAdminCreated:   detailsOnly,
	},
	domain.ReviewStatusRejected: {
		domain.SourceAIGenerated:    detailsOnly,
		domain.SourceUserSuggestion: detailsOnly,
		domain.SourceCurated:        detailsOnly,
		domain.SourceAdminCreated:   detailsOnly,
	},
}

func planReingest(current domain.ReviewStatus, source domain.Source) updatePlan {
	return reingestTable[current][source]
}
