package domain

// Choice pairs an enum value with its display label.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// BoardMeta is the static board metadata payload.
type BoardMeta struct {
	DefaultProjectKey string   `json:"default_project_key"`
	Statuses          []Choice `json:"statuses"`
	Priorities        []Choice `json:"priorities"`
}

// Board returns the board metadata: the default project key plus the
// enumerated statuses and priorities in column order.
func Board() BoardMeta {
	return BoardMeta{
		DefaultProjectKey: DefaultProjectKey,
		Statuses: []Choice{
			{Value: string(StatusTodo), Label: StatusTodo.Label()},
			{Value: string(StatusInProgress), Label: StatusInProgress.Label()},
			{Value: string(StatusInReview), Label: StatusInReview.Label()},
			{Value: string(StatusDone), Label: StatusDone.Label()},
		},
		Priorities: []Choice{
			{Value: string(PriorityLow), Label: PriorityLow.Label()},
			{Value: string(PriorityMedium), Label: PriorityMedium.Label()},
			{Value: string(PriorityHigh), Label: PriorityHigh.Label()},
			{Value: string(PriorityCritical), Label: PriorityCritical.Label()},
		},
	}
}
