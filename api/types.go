package api

import (
	"context"

	"planai-api/domain"
	"planai-api/ingest"
)

// Store abstracts the entity store for handlers.
type Store interface {
	AddProject(p domain.Project) domain.Project
	UpdateProject(id string, u domain.ProjectUpdate)
	DeleteProject(id string)
	ProjectByID(id string) (domain.Project, bool)
	Projects() []domain.Project

	AddStep(projectID string, st domain.Step) domain.Step
	UpdateStep(projectID, stepID string, u domain.StepUpdate)
	DeleteStep(projectID, stepID string)
	ToggleStepCompletion(projectID, stepID string)
	StepsByProject(projectID string) []domain.Step

	AddLearning(l domain.Learning) domain.Learning
	UpdateLearning(id string, u domain.LearningUpdate)
	DeleteLearning(id string)
	LearningsByProject(projectID string) []domain.Learning

	AddCodeIssue(ci domain.CodeIssue) domain.CodeIssue
	UpdateCodeIssue(id string, u domain.CodeIssueUpdate)
	ResolveCodeIssue(id string)
	DeleteCodeIssue(id string)
	CodeIssuesByProject(projectID string) []domain.CodeIssue

	AddTask(t domain.Task) domain.Task
	UpdateTask(id string, u domain.TaskUpdate)
	ToggleTask(id string)
	DeleteTask(id string)
	Tasks() []domain.Task
	TasksByProject(projectID string) []domain.Task

	VoiceNotes() []domain.VoiceNote
}

// Pipeline abstracts the voice-note ingestion orchestrator.
type Pipeline interface {
	Submit(audio []byte, filename string) string
	SubmitText(text string) string
	Status(id string) (ingest.Status, bool)
}

// Analyzer runs the settings-driven analysis round trip.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisReport, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate submissions.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// SettingsStore persists the user's AI settings.
type SettingsStore interface {
	Settings() domain.Settings
	SetSettings(domain.Settings)
}
