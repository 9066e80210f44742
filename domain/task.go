package domain

// Task is a standalone to-do item, typically produced from a classified
// voice note. ProjectID and SourceNoteID are weak references; tasks are not
// removed when their project is.
type Task struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Priority     Priority `json:"priority"`
	DueDate      string   `json:"dueDate,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Completed    bool     `json:"completed"`
	ProjectID    string   `json:"projectId,omitempty"`
	SourceNoteID string   `json:"sourceNoteId,omitempty"`
	CreatedAt    int64    `json:"createdAt"`
}

// TaskUpdate carries a partial update; nil fields are left untouched.
type TaskUpdate struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}
