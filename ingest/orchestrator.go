package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"planai-api/ai"
	"planai-api/domain"
)

// Stage is the pipeline position of one submission.
type Stage string

const (
	StageCapturing    Stage = "capturing"
	StageTranscribing Stage = "transcribing"
	StageClassifying  Stage = "classifying"
	StagePersisting   Stage = "persisting"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Failure reasons reported on terminal Failed submissions.
const (
	ReasonTimeout        = "timeout"
	ReasonRateLimit      = "rate-limit"
	ReasonPayment        = "payment"
	ReasonParse          = "parse"
	ReasonTranscription  = "transcription"
	ReasonClassification = "classification"
	ReasonPersistence    = "persistence"
)

// EntityStore is the slice of the entity store the pipeline writes to.
// Implementations backed by purely local state never fail; ones that
// write through to a remote backend may.
type EntityStore interface {
	PersistNote(transcription string, c domain.Classification) (domain.VoiceNote, error)
	CreateProject(p domain.Project) (domain.Project, error)
	CreateTask(t domain.Task) (domain.Task, error)
}

// Result is what a successful submission produced.
type Result struct {
	Note    domain.VoiceNote `json:"note"`
	Project *domain.Project  `json:"project,omitempty"`
	Tasks   []domain.Task    `json:"tasks,omitempty"`
	// TaskErrors report child-task writes that failed after the parent
	// project persisted. The submission still counts as successful.
	TaskErrors []string `json:"taskErrors,omitempty"`
}

// Status is the queryable state of one submission.
type Status struct {
	ID        string  `json:"id"`
	Stage     Stage   `json:"stage"`
	Reason    string  `json:"reason,omitempty"`
	Error     string  `json:"error,omitempty"`
	Result    *Result `json:"result,omitempty"`
	StartedAt int64   `json:"startedAt"`
	UpdatedAt int64   `json:"updatedAt"`
}

// Orchestrator runs the voice-note pipeline: transcribe, classify, persist,
// fan out. Each submission gets its own goroutine and state machine;
// submissions never block one another. Failed is terminal: the pipeline
// does not retry across stage boundaries, a new recording must be
// submitted.
type Orchestrator struct {
	store       EntityStore
	transcriber ai.Transcriber
	classifier  ai.Classifier
	logger      *log.Logger
	stageLimit  time.Duration

	mu   sync.Mutex
	subs map[string]*Status
	wg   sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStageTimeout overrides the per-network-stage deadline.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stageLimit = d
		}
	}
}

// New creates an Orchestrator.
func New(store EntityStore, transcriber ai.Transcriber, classifier ai.Classifier, logger *log.Logger, opts ...Option) *Orchestrator {
	if store == nil {
		panic("ingest.New: store is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	o := &Orchestrator{
		store:       store,
		transcriber: transcriber,
		classifier:  classifier,
		logger:      logger,
		stageLimit:  20 * time.Second,
		subs:        map[string]*Status{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit starts a pipeline run for a finished recording and returns the
// submission ID. The audio is what the client captured up to the stop
// event.
func (o *Orchestrator) Submit(audio []byte, filename string) string {
	id := uuid.NewString()
	now := time.Now().UnixMilli()

	o.mu.Lock()
	o.subs[id] = &Status{ID: id, Stage: StageCapturing, StartedAt: now, UpdatedAt: now}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(id, audio, filename)
	}()
	return id
}

// SubmitText runs the pipeline for text that needs no transcription, e.g.
// a typed quick-capture note. It enters the state machine at Classifying.
func (o *Orchestrator) SubmitText(text string) string {
	id := uuid.NewString()
	now := time.Now().UnixMilli()

	o.mu.Lock()
	o.subs[id] = &Status{ID: id, Stage: StageClassifying, StartedAt: now, UpdatedAt: now}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.classifyAndPersist(id, text)
	}()
	return id
}

// Status returns the submission state.
func (o *Orchestrator) Status(id string) (Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.subs[id]
	if !ok {
		return Status{}, false
	}
	cp := *st
	if st.Result != nil {
		r := *st.Result
		cp.Result = &r
	}
	return cp, true
}

// Wait blocks until every in-flight submission settled. Used on shutdown
// and by tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(id string, audio []byte, filename string) {
	o.setStage(id, StageTranscribing)

	ctx, cancel := context.WithTimeout(context.Background(), o.stageLimit)
	text, err := o.transcriber.Transcribe(ctx, audio, filename)
	cancel()
	if err != nil {
		o.fail(id, ReasonTranscription, err)
		return
	}

	o.classifyAndPersist(id, text)
}

func (o *Orchestrator) classifyAndPersist(id, text string) {
	o.setStage(id, StageClassifying)

	ctx, cancel := context.WithTimeout(context.Background(), o.stageLimit)
	classification, err := o.classifier.Classify(ctx, text)
	cancel()
	if err != nil {
		o.fail(id, ReasonClassification, err)
		return
	}

	o.setStage(id, StagePersisting)
	result, err := o.persist(text, classification)
	if err != nil {
		o.fail(id, ReasonPersistence, err)
		return
	}

	o.complete(id, result)
}

// persist writes the note first, then fans out. A child-task failure after
// the project persisted does not roll anything back; it is reported on the
// result instead.
func (o *Orchestrator) persist(text string, c domain.Classification) (*Result, error) {
	note, err := o.store.PersistNote(text, c)
	if err != nil {
		return nil, fmt.Errorf("persist note: %w", err)
	}
	result := &Result{Note: note}

	switch c.Type {
	case domain.NoteTask:
		task, err := o.store.CreateTask(domain.Task{
			Title:        c.Title,
			Description:  c.Description,
			Priority:     c.Priority,
			DueDate:      c.DueDate,
			Tags:         c.Tags,
			SourceNoteID: note.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("persist task: %w", err)
		}
		result.Tasks = []domain.Task{task}

	case domain.NoteProject:
		category := c.Category
		if category == "" {
			category = "general"
		}
		project, err := o.store.CreateProject(domain.Project{
			Title:       c.Title,
			Description: c.Description,
			Status:      domain.StatusPlanning,
			Priority:    c.Priority,
			Category:    category,
		})
		if err != nil {
			return nil, fmt.Errorf("persist project: %w", err)
		}
		result.Project = &project

		for _, title := range c.Tasks {
			task, err := o.store.CreateTask(domain.Task{
				Title:        title,
				Priority:     c.Priority,
				Tags:         c.Tags,
				ProjectID:    project.ID,
				SourceNoteID: note.ID,
			})
			if err != nil {
				o.logger.WithFields(log.Fields{
					"project": project.ID,
					"task":    title,
				}).Errorf("fan-out task write failed: %v", err)
				result.TaskErrors = append(result.TaskErrors, fmt.Sprintf("%s: %v", title, err))
				continue
			}
			result.Tasks = append(result.Tasks, task)
		}
	}
	return result, nil
}

func (o *Orchestrator) setStage(id string, stage Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.subs[id]
	if !ok {
		return
	}
	st.Stage = stage
	st.UpdatedAt = time.Now().UnixMilli()
}

func (o *Orchestrator) complete(id string, result *Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.subs[id]
	if !ok {
		return
	}
	st.Stage = StageDone
	st.Result = result
	st.UpdatedAt = time.Now().UnixMilli()
}

func (o *Orchestrator) fail(id, fallback string, err error) {
	reason := failureReason(err, fallback)
	o.logger.WithFields(log.Fields{
		"submission": id,
		"reason":     reason,
	}).Errorf("voice-note pipeline failed: %v", err)

	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.subs[id]
	if !ok {
		return
	}
	st.Stage = StageFailed
	st.Reason = reason
	st.Error = err.Error()
	st.UpdatedAt = time.Now().UnixMilli()
}

// failureReason maps the adapter error taxonomy onto a stable reason
// string; anything unrecognized keeps the stage's own label.
func failureReason(err error, fallback string) string {
	var rl *ai.RateLimitError
	if errors.As(err, &rl) {
		return ReasonRateLimit
	}
	var auth *ai.AuthError
	if errors.As(err, &auth) {
		return ReasonPayment
	}
	var parse *ai.ParseError
	if errors.As(err, &parse) {
		return ReasonParse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return fallback
}
