package domain

// IssueType enumerates what a code issue flags.
type IssueType string

const (
	IssueLength     IssueType = "length"
	IssueDuplicate  IssueType = "duplicate"
	IssueComplexity IssueType = "complexity"
	IssueSecurity   IssueType = "security"
)

func (t IssueType) Valid() bool {
	switch t {
	case IssueLength, IssueDuplicate, IssueComplexity, IssueSecurity:
		return true
	}
	return false
}

// Severity enumerates how urgent a code issue is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// CodeIssue is a project-scoped quality flag on a source file.
type CodeIssue struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	File        string    `json:"file"`
	Lines       int       `json:"lines"`
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description,omitempty"`
	Suggestion  string    `json:"suggestion,omitempty"`
	Resolved    bool      `json:"resolved"`
	ResolvedAt  int64     `json:"resolvedAt,omitempty"`
}

// CodeIssueUpdate carries a partial update; nil fields are left untouched.
// Resolution goes through the store's Resolve operation.
type CodeIssueUpdate struct {
	File        *string    `json:"file,omitempty"`
	Lines       *int       `json:"lines,omitempty"`
	Type        *IssueType `json:"type,omitempty"`
	Severity    *Severity  `json:"severity,omitempty"`
	Description *string    `json:"description,omitempty"`
	Suggestion  *string    `json:"suggestion,omitempty"`
}
