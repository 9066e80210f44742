package domain

// ProjectStatus enumerates the lifecycle phases of a project.
type ProjectStatus string

const (
	StatusPlanning   ProjectStatus = "planning"
	StatusInProgress ProjectStatus = "in-progress"
	StatusReview     ProjectStatus = "review"
	StatusCompleted  ProjectStatus = "completed"
)

// Valid reports whether the status is one of the known phases.
func (s ProjectStatus) Valid() bool {
	switch s {
	case StatusPlanning, StatusInProgress, StatusReview, StatusCompleted:
		return true
	}
	return false
}

// Priority enumerates the shared low/medium/high scale. Steps additionally
// allow "critical".
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is usable on projects, tasks and learnings.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ValidForStep additionally admits the critical level.
func (p Priority) ValidForStep() bool {
	return p.Valid() || p == PriorityCritical
}

// Project is the root aggregate. Steps, learnings and code issues reference
// it by ID and are removed with it; tasks reference it weakly.
type Project struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	Status         ProjectStatus `json:"status"`
	Priority       Priority      `json:"priority"`
	Category       string        `json:"category,omitempty"`
	Progress       int           `json:"progress"`
	StepsCompleted int           `json:"stepsCompleted"`
	TotalSteps     int           `json:"totalSteps"`
	Technologies   []string      `json:"technologies,omitempty"`
	// Team is ordered; the first entry is the owning user and is never
	// removable.
	Team        []string `json:"team,omitempty"`
	CreatedAt   int64    `json:"createdAt"`
	LastUpdated int64    `json:"lastUpdated"`
}

// ProjectUpdate carries a partial update; nil fields are left untouched.
// Derived fields (progress, step counters) are owned by the store and have
// no update slots.
type ProjectUpdate struct {
	Title        *string        `json:"title,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Status       *ProjectStatus `json:"status,omitempty"`
	Priority     *Priority      `json:"priority,omitempty"`
	Category     *string        `json:"category,omitempty"`
	Technologies *[]string      `json:"technologies,omitempty"`
	Team         *[]string      `json:"team,omitempty"`
}

// Empty reports whether the update would change nothing.
func (u ProjectUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.Priority == nil && u.Category == nil && u.Technologies == nil && u.Team == nil
}
