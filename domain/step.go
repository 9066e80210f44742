package domain

// StepStatus enumerates the workflow state of a step. It is independent of
// the completed flag but must agree with it: completed=true implies
// StepStatusCompleted.
type StepStatus string

const (
	StepNotStarted StepStatus = "not_started"
	StepInProgress StepStatus = "in_progress"
	StepBlocked    StepStatus = "blocked"
	StepCompleted  StepStatus = "completed"
)

func (s StepStatus) Valid() bool {
	switch s {
	case StepNotStarted, StepInProgress, StepBlocked, StepCompleted:
		return true
	}
	return false
}

// SubTask is owned inline by its step; it has no independent lifecycle.
type SubTask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Step belongs to exactly one project.
type Step struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"projectId"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Completed      bool       `json:"completed"`
	Status         StepStatus `json:"status"`
	Priority       Priority   `json:"priority,omitempty"`
	EstimatedHours float64    `json:"estimatedHours,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	Subtasks       []SubTask  `json:"subtasks,omitempty"`
	// Learnings are free-text entries local to the step, distinct from the
	// global Learning entity.
	Learnings   []string `json:"learnings,omitempty"`
	CreatedAt   int64    `json:"createdAt"`
	CompletedAt int64    `json:"completedAt,omitempty"`
}

// StepUpdate carries a partial update; nil fields are left untouched.
// Completion is toggled through the store, not patched here.
type StepUpdate struct {
	Title          *string     `json:"title,omitempty"`
	Description    *string     `json:"description,omitempty"`
	Status         *StepStatus `json:"status,omitempty"`
	Priority       *Priority   `json:"priority,omitempty"`
	EstimatedHours *float64    `json:"estimatedHours,omitempty"`
	Notes          *string     `json:"notes,omitempty"`
	Subtasks       *[]SubTask  `json:"subtasks,omitempty"`
	Learnings      *[]string   `json:"learnings,omitempty"`
}

func (u StepUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.Priority == nil && u.EstimatedHours == nil && u.Notes == nil &&
		u.Subtasks == nil && u.Learnings == nil
}
