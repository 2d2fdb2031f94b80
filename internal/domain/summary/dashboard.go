package summary

import "github.com/okian/crmscore/internal/domain/model"

// TopProspectCount is the number of prospects listed on the dashboard.
const TopProspectCount = 5

// Dashboard is the aggregated view of the whole CRM.
type Dashboard struct {
	Entities           int                  `json:"entities"`
	ByStatus           map[model.Status]int `json:"by_status"`
	AverageScore       float64              `json:"average_score"`
	TopProspects       []model.Entity       `json:"top_prospects"`
	Opportunities      int                  `json:"opportunities"`
	ByStage            map[string]int       `json:"by_stage"`
	TotalValue         int64                `json:"total_value"`
	TotalWeightedValue int64                `json:"total_weighted_value"`
	AverageProbability float64              `json:"average_probability"`
	PendingApprovals   int                  `json:"pending_approvals"`
}

// Summarize builds the dashboard. It fails when an opportunity has an invalid
// value or probability, or when a total overflows.
func Summarize(entities []model.Entity, opps []model.Opportunity) (Dashboard, error) {
	total, err := TotalValue(opps)
	if err != nil {
		return Dashboard{}, err
	}
	weighted, err := TotalWeightedValue(opps)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		Entities:           len(entities),
		ByStatus:           CountByStatus(entities),
		AverageScore:       AverageScore(entities),
		TopProspects:       TopEntities(withStatus(entities, model.StatusProspect), TopProspectCount),
		Opportunities:      len(opps),
		ByStage:            CountByStage(opps),
		TotalValue:         total,
		TotalWeightedValue: weighted,
		AverageProbability: AverageProbability(opps),
		PendingApprovals:   ApprovalCount(opps),
	}, nil
}

func withStatus(entities []model.Entity, status model.Status) []model.Entity {
	out := make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}
