package domain

// LearningType enumerates the kind of takeaway a learning records.
type LearningType string

const (
	LearningSuccess LearningType = "success"
	LearningFailure LearningType = "failure"
	LearningInsight LearningType = "insight"
)

func (t LearningType) Valid() bool {
	switch t {
	case LearningSuccess, LearningFailure, LearningInsight:
		return true
	}
	return false
}

// Learning is a project-scoped takeaway. RelatedStep is a weak reference
// used for lookup only; it carries no ownership.
type Learning struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"projectId"`
	Title       string       `json:"title"`
	Content     string       `json:"content,omitempty"`
	Type        LearningType `json:"type"`
	Tags        []string     `json:"tags,omitempty"`
	RelatedStep string       `json:"relatedStep,omitempty"`
	Date        int64        `json:"date"`
}

// LearningUpdate carries a partial update; nil fields are left untouched.
type LearningUpdate struct {
	Title       *string       `json:"title,omitempty"`
	Content     *string       `json:"content,omitempty"`
	Type        *LearningType `json:"type,omitempty"`
	Tags        *[]string     `json:"tags,omitempty"`
	RelatedStep *string       `json:"relatedStep,omitempty"`
}
