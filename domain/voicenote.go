package domain

import "strings"

// NoteKind enumerates what a classified voice note turns into.
type NoteKind string

const (
	NoteTask    NoteKind = "task"
	NoteProject NoteKind = "project"
)

func (k NoteKind) Valid() bool {
	return k == NoteTask || k == NoteProject
}

// Classification is the structured record produced by sending a
// transcription to a completion provider. Type and Title are mandatory;
// adapters must reject any provider reply that cannot fill both.
type Classification struct {
	Type        NoteKind `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority"`
	DueDate     string   `json:"due_date,omitempty"`
	// Tasks holds the action items when Type is project. Providers emit
	// them under either "tasks" or "action_items"; adapters merge both.
	Tasks    []string `json:"tasks,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Validate reports whether the classification satisfies the output
// contract. It returns the first violated field, or "".
func (c Classification) Validate() string {
	if !c.Type.Valid() {
		return "type"
	}
	if strings.TrimSpace(c.Title) == "" {
		return "title"
	}
	if c.Priority != "" && !c.Priority.Valid() {
		return "priority"
	}
	return ""
}

// VoiceNote is the source record of one recording. It is independent of the
// project tree: downstream tasks and projects reference it weakly via
// SourceNoteID, and it is never deleted by normal flow.
type VoiceNote struct {
	ID            string          `json:"id"`
	Transcription string          `json:"transcription"`
	AIAnalysis    *Classification `json:"aiAnalysis,omitempty"`
	Processed     bool            `json:"processed"`
	CreatedAt     int64           `json:"createdAt"`
}
