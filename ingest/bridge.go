package ingest

import (
	"planai-api/domain"
	"planai-api/store"
)

// StoreBridge adapts the concrete entity store to the pipeline's
// EntityStore. Local store writes cannot fail, so every error is nil; the
// interface keeps room for write-through implementations that can.
type StoreBridge struct {
	Store *store.Store
}

func (b StoreBridge) PersistNote(transcription string, c domain.Classification) (domain.VoiceNote, error) {
	return b.Store.AddVoiceNote(transcription, &c), nil
}

func (b StoreBridge) CreateProject(p domain.Project) (domain.Project, error) {
	return b.Store.AddProject(p), nil
}

func (b StoreBridge) CreateTask(t domain.Task) (domain.Task, error) {
	return b.Store.AddTask(t), nil
}
