package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"planai-api/domain"
)

// Persister receives the full store state after every successful mutation.
// A nil persister keeps the store memory-only, which is what tests use.
type Persister interface {
	Save(State) error
}

// Recorder observes individual change events, e.g. for mirroring to a
// remote backend. Recording must not block.
type Recorder interface {
	Record(Change)
}

// Change describes one applied mutation.
type Change struct {
	Entity   string `json:"entity"`
	Op       string `json:"op"`
	EntityID string `json:"entityId"`
	// ParentID carries the project ID for project-scoped entities.
	ParentID string `json:"parentId,omitempty"`
	Time     int64  `json:"time"`
}

// State is the complete entity set, the unit of persistence.
type State struct {
	Projects   map[string]domain.Project   `json:"projects"`
	Steps      map[string][]domain.Step    `json:"steps"`
	Learnings  map[string]domain.Learning  `json:"learnings"`
	CodeIssues map[string]domain.CodeIssue `json:"codeIssues"`
	Tasks      map[string]domain.Task      `json:"tasks"`
	VoiceNotes map[string]domain.VoiceNote `json:"voiceNotes"`
}

func emptyState() State {
	return State{
		Projects:   map[string]domain.Project{},
		Steps:      map[string][]domain.Step{},
		Learnings:  map[string]domain.Learning{},
		CodeIssues: map[string]domain.CodeIssue{},
		Tasks:      map[string]domain.Task{},
		VoiceNotes: map[string]domain.VoiceNote{},
	}
}

// Store is the single source of truth for all entity data. Mutations are
// atomic under one mutex: readers never observe a partially applied
// cascade or a project whose counters disagree with its steps.
//
// Update and delete operations on unknown IDs are silent no-ops. Inputs
// are validated upstream; the store does not re-validate.
type Store struct {
	mu        sync.Mutex
	state     State
	persister Persister
	recorder  Recorder
	logger    *log.Logger
	now       func() int64
}

// Option configures a Store.
type Option func(*Store)

// WithPersister enables write-through persistence.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithRecorder attaches a change-event observer.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// AttachRecorder sets the change observer after construction. The mirror
// resolves entity state through the store, so it cannot exist before it.
func (s *Store) AttachRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = r
}

// WithState seeds the store, typically from a loaded snapshot.
func WithState(st State) Option {
	return func(s *Store) { s.state = normalize(st) }
}

// WithClock overrides the timestamp source.
func WithClock(now func() int64) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store.
func New(logger *log.Logger, opts ...Option) *Store {
	s := &Store{
		state:  emptyState(),
		logger: logger,
		now:    monotonicMillis,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.StandardLogger()
	}
	return s
}

func normalize(st State) State {
	out := emptyState()
	for id, p := range st.Projects {
		out.Projects[id] = p
	}
	for id, steps := range st.Steps {
		out.Steps[id] = append([]domain.Step(nil), steps...)
	}
	for id, l := range st.Learnings {
		out.Learnings[id] = l
	}
	for id, ci := range st.CodeIssues {
		out.CodeIssues[id] = ci
	}
	for id, t := range st.Tasks {
		out.Tasks[id] = t
	}
	for id, n := range st.VoiceNotes {
		out.VoiceNotes[id] = n
	}
	return out
}

// commit persists the full state and emits the change event. Called with
// the mutex held, after the in-memory mutation completed.
func (s *Store) commit(ch Change) {
	ch.Time = s.now()
	if s.persister != nil {
		if err := s.persister.Save(s.snapshotLocked()); err != nil {
			s.logger.WithFields(log.Fields{
				"entity": ch.Entity,
				"op":     ch.Op,
				"id":     ch.EntityID,
			}).Errorf("persist state: %v", err)
		}
	}
	if s.recorder != nil {
		s.recorder.Record(ch)
	}
}

func (s *Store) snapshotLocked() State {
	out := emptyState()
	for id, p := range s.state.Projects {
		out.Projects[id] = cloneProject(p)
	}
	for id, steps := range s.state.Steps {
		out.Steps[id] = cloneSteps(steps)
	}
	for id, l := range s.state.Learnings {
		out.Learnings[id] = cloneLearning(l)
	}
	for id, ci := range s.state.CodeIssues {
		out.CodeIssues[id] = ci
	}
	for id, t := range s.state.Tasks {
		out.Tasks[id] = cloneTask(t)
	}
	for id, n := range s.state.VoiceNotes {
		out.VoiceNotes[id] = cloneVoiceNote(n)
	}
	return out
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// --- projects ---

// AddProject registers a new project with zeroed derived fields and an
// empty step list. The first team entry is the owning user.
func (s *Store) AddProject(p domain.Project) domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = uuid.NewString()
	p.CreatedAt = s.now()
	p.LastUpdated = p.CreatedAt
	p.Progress = 0
	p.StepsCompleted = 0
	p.TotalSteps = 0
	if p.Status == "" {
		p.Status = domain.StatusPlanning
	}
	s.state.Projects[p.ID] = p
	s.state.Steps[p.ID] = []domain.Step{}

	s.commit(Change{Entity: "project", Op: "created", EntityID: p.ID})
	return cloneProject(p)
}

// UpdateProject shallow-merges the provided fields and stamps lastUpdated.
// Unknown IDs are ignored. The owning user (first team entry) survives any
// team rewrite.
func (s *Store) UpdateProject(id string, u domain.ProjectUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.Projects[id]
	if !ok {
		return
	}
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.Priority != nil {
		p.Priority = *u.Priority
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Technologies != nil {
		p.Technologies = append([]string(nil), (*u.Technologies)...)
	}
	if u.Team != nil {
		team := append([]string(nil), (*u.Team)...)
		if len(p.Team) > 0 {
			owner := p.Team[0]
			if len(team) == 0 || team[0] != owner {
				team = append([]string{owner}, remove(team, owner)...)
			}
		}
		p.Team = team
	}
	p.LastUpdated = s.now()
	s.state.Projects[id] = p

	s.commit(Change{Entity: "project", Op: "updated", EntityID: id})
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// DeleteProject removes the project and cascades to its steps, learnings
// and code issues in a single critical section.
func (s *Store) DeleteProject(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Projects[id]; !ok {
		return
	}
	delete(s.state.Projects, id)
	delete(s.state.Steps, id)
	for lid, l := range s.state.Learnings {
		if l.ProjectID == id {
			delete(s.state.Learnings, lid)
		}
	}
	for cid, ci := range s.state.CodeIssues {
		if ci.ProjectID == id {
			delete(s.state.CodeIssues, cid)
		}
	}

	s.commit(Change{Entity: "project", Op: "deleted", EntityID: id})
}

// ProjectByID returns the project and whether it exists.
func (s *Store) ProjectByID(id string) (domain.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.Projects[id]
	if !ok {
		return domain.Project{}, false
	}
	return cloneProject(p), true
}

// Projects lists all projects ordered by creation time.
func (s *Store) Projects() []domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Project, 0, len(s.state.Projects))
	for _, p := range s.state.Projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// --- steps ---

// AddStep appends a step to the project's list and recomputes the parent's
// totals. Adding to an unknown project registers an orphaned step list;
// the project itself is not created.
func (s *Store) AddStep(projectID string, st domain.Step) domain.Step {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.ID = uuid.NewString()
	st.ProjectID = projectID
	st.CreatedAt = s.now()
	st.Completed = false
	st.CompletedAt = 0
	if st.Status == "" {
		st.Status = domain.StepNotStarted
	}
	s.state.Steps[projectID] = append(s.state.Steps[projectID], st)
	s.recountLocked(projectID)

	s.commit(Change{Entity: "step", Op: "created", EntityID: st.ID, ParentID: projectID})
	return st
}

// UpdateStep shallow-merges fields into the matching step. Completion is
// normally toggled through ToggleStepCompletion, but a status update that
// moves a completed step off "completed" clears the flag so the two never
// disagree; progress is recomputed only in that case.
func (s *Store) UpdateStep(projectID, stepID string, u domain.StepUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := s.state.Steps[projectID]
	i := indexOfStep(steps, stepID)
	if i < 0 {
		return
	}
	st := steps[i]
	recount := false
	if u.Title != nil {
		st.Title = *u.Title
	}
	if u.Description != nil {
		st.Description = *u.Description
	}
	if u.Status != nil {
		st.Status = *u.Status
		if st.Completed && st.Status != domain.StepCompleted {
			st.Completed = false
			st.CompletedAt = 0
			recount = true
		}
	}
	if u.Priority != nil {
		st.Priority = *u.Priority
	}
	if u.EstimatedHours != nil {
		st.EstimatedHours = *u.EstimatedHours
	}
	if u.Notes != nil {
		st.Notes = *u.Notes
	}
	if u.Subtasks != nil {
		st.Subtasks = append([]domain.SubTask(nil), (*u.Subtasks)...)
	}
	if u.Learnings != nil {
		st.Learnings = append([]string(nil), (*u.Learnings)...)
	}
	steps[i] = st
	if recount {
		s.recountLocked(projectID)
	}

	s.commit(Change{Entity: "step", Op: "updated", EntityID: stepID, ParentID: projectID})
}

// DeleteStep removes the step and recomputes the parent's counters and
// progress.
func (s *Store) DeleteStep(projectID, stepID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := s.state.Steps[projectID]
	i := indexOfStep(steps, stepID)
	if i < 0 {
		return
	}
	s.state.Steps[projectID] = append(steps[:i], steps[i+1:]...)
	s.recountLocked(projectID)

	s.commit(Change{Entity: "step", Op: "deleted", EntityID: stepID, ParentID: projectID})
}

// ToggleStepCompletion flips the step's completed flag, stamps or clears
// completedAt, aligns the step status and recomputes the parent's
// progress. Toggling twice restores the original state.
func (s *Store) ToggleStepCompletion(projectID, stepID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := s.state.Steps[projectID]
	i := indexOfStep(steps, stepID)
	if i < 0 {
		return
	}
	st := steps[i]
	st.Completed = !st.Completed
	if st.Completed {
		st.CompletedAt = s.now()
		st.Status = domain.StepCompleted
	} else {
		st.CompletedAt = 0
		st.Status = domain.StepInProgress
	}
	steps[i] = st
	s.recountLocked(projectID)

	s.commit(Change{Entity: "step", Op: "toggled", EntityID: stepID, ParentID: projectID})
}

// StepByID returns a step within the project's list.
func (s *Store) StepByID(projectID, stepID string) (domain.Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := s.state.Steps[projectID]
	i := indexOfStep(steps, stepID)
	if i < 0 {
		return domain.Step{}, false
	}
	return cloneSteps(steps[i : i+1])[0], true
}

// StepsByProject lists the project's steps in insertion order. Unknown
// projects yield an empty slice.
func (s *Store) StepsByProject(projectID string) []domain.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSteps(s.state.Steps[projectID])
}

func indexOfStep(steps []domain.Step, id string) int {
	for i := range steps {
		if steps[i].ID == id {
			return i
		}
	}
	return -1
}

// recountLocked re-derives stepsCompleted, totalSteps and progress on the
// parent project and stamps lastUpdated. Held invariant: 0 <= completed <=
// total and progress == round(completed/total*100), 0 when total is 0.
func (s *Store) recountLocked(projectID string) {
	p, ok := s.state.Projects[projectID]
	if !ok {
		return
	}
	total := len(s.state.Steps[projectID])
	completed := 0
	for _, st := range s.state.Steps[projectID] {
		if st.Completed {
			completed++
		}
	}
	p.TotalSteps = total
	p.StepsCompleted = completed
	p.Progress = domain.ProgressRate(completed, total)
	p.LastUpdated = s.now()
	s.state.Projects[projectID] = p
}

// --- learnings ---

// AddLearning registers a learning.
func (s *Store) AddLearning(l domain.Learning) domain.Learning {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ID = uuid.NewString()
	if l.Date == 0 {
		l.Date = s.now()
	}
	s.state.Learnings[l.ID] = l

	s.commit(Change{Entity: "learning", Op: "created", EntityID: l.ID, ParentID: l.ProjectID})
	return cloneLearning(l)
}

// UpdateLearning shallow-merges fields; unknown IDs are ignored.
func (s *Store) UpdateLearning(id string, u domain.LearningUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.state.Learnings[id]
	if !ok {
		return
	}
	if u.Title != nil {
		l.Title = *u.Title
	}
	if u.Content != nil {
		l.Content = *u.Content
	}
	if u.Type != nil {
		l.Type = *u.Type
	}
	if u.Tags != nil {
		l.Tags = append([]string(nil), (*u.Tags)...)
	}
	if u.RelatedStep != nil {
		l.RelatedStep = *u.RelatedStep
	}
	s.state.Learnings[id] = l

	s.commit(Change{Entity: "learning", Op: "updated", EntityID: id, ParentID: l.ProjectID})
}

// DeleteLearning removes the learning; unknown IDs are ignored.
func (s *Store) DeleteLearning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.state.Learnings[id]
	if !ok {
		return
	}
	delete(s.state.Learnings, id)

	s.commit(Change{Entity: "learning", Op: "deleted", EntityID: id, ParentID: l.ProjectID})
}

// LearningByID returns the learning and whether it exists.
func (s *Store) LearningByID(id string) (domain.Learning, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.state.Learnings[id]
	if !ok {
		return domain.Learning{}, false
	}
	return cloneLearning(l), true
}

// LearningsByProject lists the project's learnings ordered by date.
func (s *Store) LearningsByProject(projectID string) []domain.Learning {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Learning{}
	for _, l := range s.state.Learnings {
		if l.ProjectID == projectID {
			out = append(out, cloneLearning(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// --- code issues ---

// AddCodeIssue registers a code issue.
func (s *Store) AddCodeIssue(ci domain.CodeIssue) domain.CodeIssue {
	s.mu.Lock()
	defer s.mu.Unlock()

	ci.ID = uuid.NewString()
	ci.Resolved = false
	ci.ResolvedAt = 0
	s.state.CodeIssues[ci.ID] = ci

	s.commit(Change{Entity: "code-issue", Op: "created", EntityID: ci.ID, ParentID: ci.ProjectID})
	return ci
}

// UpdateCodeIssue shallow-merges fields; unknown IDs are ignored.
func (s *Store) UpdateCodeIssue(id string, u domain.CodeIssueUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ci, ok := s.state.CodeIssues[id]
	if !ok {
		return
	}
	if u.File != nil {
		ci.File = *u.File
	}
	if u.Lines != nil {
		ci.Lines = *u.Lines
	}
	if u.Type != nil {
		ci.Type = *u.Type
	}
	if u.Severity != nil {
		ci.Severity = *u.Severity
	}
	if u.Description != nil {
		ci.Description = *u.Description
	}
	if u.Suggestion != nil {
		ci.Suggestion = *u.Suggestion
	}
	s.state.CodeIssues[id] = ci

	s.commit(Change{Entity: "code-issue", Op: "updated", EntityID: id, ParentID: ci.ProjectID})
}

// ResolveCodeIssue marks the issue resolved and stamps resolvedAt.
// Resolving an already-resolved issue is a no-op.
func (s *Store) ResolveCodeIssue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ci, ok := s.state.CodeIssues[id]
	if !ok || ci.Resolved {
		return
	}
	ci.Resolved = true
	ci.ResolvedAt = s.now()
	s.state.CodeIssues[id] = ci

	s.commit(Change{Entity: "code-issue", Op: "resolved", EntityID: id, ParentID: ci.ProjectID})
}

// DeleteCodeIssue removes the issue; unknown IDs are ignored.
func (s *Store) DeleteCodeIssue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ci, ok := s.state.CodeIssues[id]
	if !ok {
		return
	}
	delete(s.state.CodeIssues, id)

	s.commit(Change{Entity: "code-issue", Op: "deleted", EntityID: id, ParentID: ci.ProjectID})
}

// CodeIssueByID returns the issue and whether it exists.
func (s *Store) CodeIssueByID(id string) (domain.CodeIssue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci, ok := s.state.CodeIssues[id]
	if !ok {
		return domain.CodeIssue{}, false
	}
	return ci, true
}

// CodeIssuesByProject lists the project's issues, unresolved first, then by
// file.
func (s *Store) CodeIssuesByProject(projectID string) []domain.CodeIssue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.CodeIssue{}
	for _, ci := range s.state.CodeIssues {
		if ci.ProjectID == projectID {
			out = append(out, ci)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resolved != out[j].Resolved {
			return !out[i].Resolved
		}
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// --- tasks ---

// AddTask registers a task.
func (s *Store) AddTask(t domain.Task) domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = uuid.NewString()
	t.CreatedAt = s.now()
	t.Completed = false
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	s.state.Tasks[t.ID] = t

	s.commit(Change{Entity: "task", Op: "created", EntityID: t.ID, ParentID: t.ProjectID})
	return cloneTask(t)
}

// UpdateTask shallow-merges fields; unknown IDs are ignored.
func (s *Store) UpdateTask(id string, u domain.TaskUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.Tasks[id]
	if !ok {
		return
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.DueDate != nil {
		t.DueDate = *u.DueDate
	}
	if u.Tags != nil {
		t.Tags = append([]string(nil), (*u.Tags)...)
	}
	s.state.Tasks[id] = t

	s.commit(Change{Entity: "task", Op: "updated", EntityID: id, ParentID: t.ProjectID})
}

// ToggleTask flips the task's completed flag.
func (s *Store) ToggleTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.Tasks[id]
	if !ok {
		return
	}
	t.Completed = !t.Completed
	s.state.Tasks[id] = t

	s.commit(Change{Entity: "task", Op: "toggled", EntityID: id, ParentID: t.ProjectID})
}

// DeleteTask removes the task; unknown IDs are ignored.
func (s *Store) DeleteTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.Tasks[id]
	if !ok {
		return
	}
	delete(s.state.Tasks, id)

	s.commit(Change{Entity: "task", Op: "deleted", EntityID: id, ParentID: t.ProjectID})
}

// TaskByID returns the task and whether it exists.
func (s *Store) TaskByID(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.Tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return cloneTask(t), true
}

// Tasks lists all tasks ordered by creation time.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0, len(s.state.Tasks))
	for _, t := range s.state.Tasks {
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TasksByProject lists tasks referencing the given project.
func (s *Store) TasksByProject(projectID string) []domain.Task {
	out := []domain.Task{}
	for _, t := range s.Tasks() {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out
}

// --- voice notes ---

// AddVoiceNote records a transcribed note. When analysis is non-nil the
// note is stored already processed, which is how the ingestion pipeline
// persists a note and its classification as one operation.
func (s *Store) AddVoiceNote(transcription string, analysis *domain.Classification) domain.VoiceNote {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := domain.VoiceNote{
		ID:            uuid.NewString(),
		Transcription: transcription,
		CreatedAt:     s.now(),
	}
	if analysis != nil {
		c := *analysis
		n.AIAnalysis = &c
		n.Processed = true
	}
	s.state.VoiceNotes[n.ID] = n

	s.commit(Change{Entity: "voice-note", Op: "created", EntityID: n.ID})
	return cloneVoiceNote(n)
}

// AttachAnalysis stores the classification on an unprocessed note and
// flips processed. Unknown IDs are ignored.
func (s *Store) AttachAnalysis(id string, analysis domain.Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.state.VoiceNotes[id]
	if !ok {
		return
	}
	c := analysis
	n.AIAnalysis = &c
	n.Processed = true
	s.state.VoiceNotes[id] = n

	s.commit(Change{Entity: "voice-note", Op: "processed", EntityID: id})
}

// VoiceNoteByID returns the note and whether it exists.
func (s *Store) VoiceNoteByID(id string) (domain.VoiceNote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.state.VoiceNotes[id]
	if !ok {
		return domain.VoiceNote{}, false
	}
	return cloneVoiceNote(n), true
}

// VoiceNotes lists all notes, newest first.
func (s *Store) VoiceNotes() []domain.VoiceNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.VoiceNote, 0, len(s.state.VoiceNotes))
	for _, n := range s.state.VoiceNotes {
		out = append(out, cloneVoiceNote(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// --- clones ---

func cloneProject(p domain.Project) domain.Project {
	p.Technologies = append([]string(nil), p.Technologies...)
	p.Team = append([]string(nil), p.Team...)
	return p
}

func cloneSteps(steps []domain.Step) []domain.Step {
	out := make([]domain.Step, len(steps))
	for i, st := range steps {
		st.Subtasks = append([]domain.SubTask(nil), st.Subtasks...)
		st.Learnings = append([]string(nil), st.Learnings...)
		out[i] = st
	}
	return out
}

func cloneLearning(l domain.Learning) domain.Learning {
	l.Tags = append([]string(nil), l.Tags...)
	return l
}

func cloneTask(t domain.Task) domain.Task {
	t.Tags = append([]string(nil), t.Tags...)
	return t
}

func cloneVoiceNote(n domain.VoiceNote) domain.VoiceNote {
	if n.AIAnalysis != nil {
		c := *n.AIAnalysis
		c.Tasks = append([]string(nil), c.Tasks...)
		c.Tags = append([]string(nil), c.Tags...)
		n.AIAnalysis = &c
	}
	return n
}
