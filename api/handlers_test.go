package api

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"planai-api/ai"
	"planai-api/domain"
	"planai-api/ingest"
	"planai-api/store"
)

type stubAuth struct{}

func (stubAuth) UserIDFromAuthHeader(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	return "user-1", nil
}

type fakePipeline struct {
	mu       sync.Mutex
	submitID string
	audio    []byte
	filename string
	text     string
	statuses map[string]ingest.Status
}

func (p *fakePipeline) Submit(audio []byte, filename string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = audio
	p.filename = filename
	return p.submitID
}

func (p *fakePipeline) SubmitText(text string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = text
	return p.submitID
}

func (p *fakePipeline) Status(id string) (ingest.Status, bool) {
	st, ok := p.statuses[id]
	return st, ok
}

type fakeAnalyzer struct {
	report domain.AnalysisReport
	err    error
	gotReq domain.AnalysisRequest
}

func (a *fakeAnalyzer) Analyze(_ context.Context, req domain.AnalysisRequest) (domain.AnalysisReport, error) {
	a.gotReq = req
	return a.report, a.err
}

type testServer struct {
	echo     *echo.Echo
	store    *store.Store
	settings *store.SettingsStore
	pipeline *fakePipeline
	analyzer *fakeAnalyzer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger, _ := test.NewNullLogger()
	st := store.New(logger)
	settings := store.NewSettingsStore(t.TempDir(), domain.Settings{Provider: domain.ProviderOpenAI}, logger)
	pipeline := &fakePipeline{submitID: "sub-1", statuses: map[string]ingest.Status{}}
	analyzer := &fakeAnalyzer{report: domain.AnalysisReport{
		ProjectOptimization: "focus",
		CodeQualityInsights: "fine",
		LearningInsights:    "more notes",
	}}

	e := echo.New()
	Register(e, Deps{
		Store:    st,
		Settings: settings,
		Pipeline: pipeline,
		Analyzer: analyzer,
		Auth:     stubAuth{},
		Deduper:  newDeduper(t),
		Logger:   logger,
	})
	return &testServer{echo: e, store: st, settings: settings, pipeline: pipeline, analyzer: analyzer}
}

func (ts *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		data, err := sonic.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer token")
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := sonic.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthzSkipsAuth(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAPIRequiresAuthorization(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProjectCRUD(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/projects", domain.Project{
		Title:    "Garden redesign",
		Status:   domain.StatusPlanning,
		Priority: domain.PriorityHigh,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	var created domain.Project
	decodeResponse(t, rec, &created)
	if created.ID == "" {
		t.Fatal("expected server-assigned id")
	}

	rec = ts.request(t, http.MethodGet, "/api/projects/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	title := "Garden overhaul"
	rec = ts.request(t, http.MethodPut, "/api/projects/"+created.ID, domain.ProjectUpdate{Title: &title})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("update status = %d body = %s", rec.Code, rec.Body.String())
	}
	p, ok := ts.store.ProjectByID(created.ID)
	if !ok || p.Title != "Garden overhaul" {
		t.Fatalf("update not applied: %+v", p)
	}

	rec = ts.request(t, http.MethodDelete, "/api/projects/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if _, ok := ts.store.ProjectByID(created.ID); ok {
		t.Fatal("project still present after delete")
	}
}

func TestGetProjectNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/projects/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body domain.Project
	}{
		{name: "missingTitle", body: domain.Project{Status: domain.StatusPlanning}},
		{name: "badStatus", body: domain.Project{Title: "x", Status: "paused"}},
		{name: "badPriority", body: domain.Project{Title: "x", Priority: "urgent"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.request(t, http.MethodPost, "/api/projects", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCreateProjectRejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`{"title":"x","sprint":7}`))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStepLifecycleThroughAPI(t *testing.T) {
	ts := newTestServer(t)
	p := ts.store.AddProject(domain.Project{Title: "Site"})

	rec := ts.request(t, http.MethodPost, "/api/projects/"+p.ID+"/steps", domain.Step{Title: "Wireframes"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create step status = %d body = %s", rec.Code, rec.Body.String())
	}
	var step domain.Step
	decodeResponse(t, rec, &step)

	rec = ts.request(t, http.MethodPost, "/api/projects/"+p.ID+"/steps/"+step.ID+"/toggle", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("toggle status = %d", rec.Code)
	}
	got, _ := ts.store.ProjectByID(p.ID)
	if got.Progress != 100 || got.StepsCompleted != 1 {
		t.Fatalf("progress not recomputed: %+v", got)
	}

	rec = ts.request(t, http.MethodGet, "/api/projects/"+p.ID+"/steps", nil)
	var steps []domain.Step
	decodeResponse(t, rec, &steps)
	if len(steps) != 1 || !steps[0].Completed {
		t.Fatalf("unexpected steps: %+v", steps)
	}

	rec = ts.request(t, http.MethodDelete, "/api/projects/"+p.ID+"/steps/"+step.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete step status = %d", rec.Code)
	}
	got, _ = ts.store.ProjectByID(p.ID)
	if got.TotalSteps != 0 {
		t.Fatalf("step counter not recomputed: %+v", got)
	}
}

func TestCreateStepRejectsNegativeEstimate(t *testing.T) {
	ts := newTestServer(t)
	p := ts.store.AddProject(domain.Project{Title: "Site"})

	rec := ts.request(t, http.MethodPost, "/api/projects/"+p.ID+"/steps", domain.Step{
		Title:          "Wireframes",
		EstimatedHours: -2,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStepAllowsCriticalPriority(t *testing.T) {
	ts := newTestServer(t)
	p := ts.store.AddProject(domain.Project{Title: "Site"})

	rec := ts.request(t, http.MethodPost, "/api/projects/"+p.ID+"/steps", domain.Step{
		Title:    "Hotfix",
		Priority: domain.PriorityCritical,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestLearningEndpoints(t *testing.T) {
	ts := newTestServer(t)
	p := ts.store.AddProject(domain.Project{Title: "Site"})

	rec := ts.request(t, http.MethodPost, "/api/learnings", domain.Learning{
		ProjectID: p.ID,
		Title:     "Cache invalidation is hard",
		Type:      domain.LearningInsight,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	var l domain.Learning
	decodeResponse(t, rec, &l)

	rec = ts.request(t, http.MethodGet, "/api/projects/"+p.ID+"/learnings", nil)
	var list []domain.Learning
	decodeResponse(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 learning, got %d", len(list))
	}

	rec = ts.request(t, http.MethodPost, "/api/learnings", domain.Learning{
		ProjectID: p.ID,
		Title:     "x",
		Type:      "epiphany",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid type status = %d, want 400", rec.Code)
	}

	rec = ts.request(t, http.MethodDelete, "/api/learnings/"+l.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestCodeIssueEndpoints(t *testing.T) {
	ts := newTestServer(t)
	p := ts.store.AddProject(domain.Project{Title: "Site"})

	rec := ts.request(t, http.MethodPost, "/api/code-issues", domain.CodeIssue{
		ProjectID: p.ID,
		File:      "handlers.go",
		Type:      domain.IssueComplexity,
		Severity:  domain.SeverityHigh,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	var ci domain.CodeIssue
	decodeResponse(t, rec, &ci)

	rec = ts.request(t, http.MethodPost, "/api/code-issues/"+ci.ID+"/resolve", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("resolve status = %d", rec.Code)
	}
	issues := ts.store.CodeIssuesByProject(p.ID)
	if len(issues) != 1 || !issues[0].Resolved {
		t.Fatalf("issue not resolved: %+v", issues)
	}

	rec = ts.request(t, http.MethodPost, "/api/code-issues", domain.CodeIssue{
		ProjectID: p.ID,
		File:      "x.go",
		Type:      "smell",
		Severity:  domain.SeverityLow,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid type status = %d, want 400", rec.Code)
	}
}

func TestProjectHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	p := ts.store.AddProject(domain.Project{Title: "Site"})
	ts.store.AddCodeIssue(domain.CodeIssue{
		ProjectID: p.ID,
		File:      "a.go",
		Type:      domain.IssueSecurity,
		Severity:  domain.SeverityHigh,
	})

	rec := ts.request(t, http.MethodGet, "/api/projects/"+p.ID+"/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var h domain.HealthReport
	decodeResponse(t, rec, &h)
	if h.QualityScore == 100 {
		t.Fatalf("expected open high issue to lower quality score, got %+v", h)
	}

	rec = ts.request(t, http.MethodGet, "/api/projects/missing/health", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing project status = %d, want 404", rec.Code)
	}
}

func TestTaskEndpoints(t *testing.T) {
	ts := newTestServer(t)
	p := ts.store.AddProject(domain.Project{Title: "Site"})

	rec := ts.request(t, http.MethodPost, "/api/tasks", domain.Task{Title: "Buy domain", ProjectID: p.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	var task domain.Task
	decodeResponse(t, rec, &task)
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("expected default priority, got %q", task.Priority)
	}

	ts.store.AddTask(domain.Task{Title: "Unrelated"})

	rec = ts.request(t, http.MethodGet, "/api/tasks?projectId="+p.ID, nil)
	var scoped []domain.Task
	decodeResponse(t, rec, &scoped)
	if len(scoped) != 1 || scoped[0].ID != task.ID {
		t.Fatalf("unexpected scoped tasks: %+v", scoped)
	}

	rec = ts.request(t, http.MethodGet, "/api/tasks", nil)
	var all []domain.Task
	decodeResponse(t, rec, &all)
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}

	rec = ts.request(t, http.MethodPost, "/api/tasks/"+task.ID+"/toggle", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("toggle status = %d", rec.Code)
	}
}

func TestSubmitVoiceNoteJSONText(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/voice-notes", textSubmission{Text: "call the plumber tomorrow"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp submitResponse
	decodeResponse(t, rec, &resp)
	if resp.SubmissionID != "sub-1" {
		t.Fatalf("unexpected submission id %q", resp.SubmissionID)
	}
	if ts.pipeline.text != "call the plumber tomorrow" {
		t.Fatalf("pipeline got text %q", ts.pipeline.text)
	}
}

func TestSubmitVoiceNoteMultipartAudio(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "note.webm")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("fake-opus-bytes")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/voice-notes", &buf)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if string(ts.pipeline.audio) != "fake-opus-bytes" {
		t.Fatalf("pipeline got audio %q", ts.pipeline.audio)
	}
	if ts.pipeline.filename != "note.webm" {
		t.Fatalf("pipeline got filename %q", ts.pipeline.filename)
	}
}

func TestSubmitVoiceNoteEmptyRejected(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/voice-notes", textSubmission{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitVoiceNoteDuplicateIdempotencyKey(t *testing.T) {
	ts := newTestServer(t)

	send := func() *httptest.ResponseRecorder {
		body, _ := sonic.Marshal(textSubmission{Text: "water the plants"})
		req := httptest.NewRequest(http.MethodPost, "/api/voice-notes", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer token")
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(idempotencyHeader, "retry-123")
		rec := httptest.NewRecorder()
		ts.echo.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusAccepted {
		t.Fatalf("first submit status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec := send(); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate submit status = %d, want 409", rec.Code)
	}
}

func TestSubmitVoiceNoteReleasesKeyWhenPipelineUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.pipeline.submitID = ""

	body, _ := sonic.Marshal(textSubmission{Text: "water the plants"})
	req := httptest.NewRequest(http.MethodPost, "/api/voice-notes", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(idempotencyHeader, "retry-123")
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	ts.pipeline.submitID = "sub-2"
	req = httptest.NewRequest(http.MethodPost, "/api/voice-notes", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(idempotencyHeader, "retry-123")
	rec = httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("retry after failure status = %d, want 202", rec.Code)
	}
}

func TestSubmissionStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.pipeline.statuses["sub-1"] = ingest.Status{ID: "sub-1", Stage: ingest.StageTranscribing}

	rec := ts.request(t, http.MethodGet, "/api/submissions/sub-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st ingest.Status
	decodeResponse(t, rec, &st)
	if st.Stage != ingest.StageTranscribing {
		t.Fatalf("unexpected stage %q", st.Stage)
	}

	rec = ts.request(t, http.MethodGet, "/api/submissions/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing submission status = %d, want 404", rec.Code)
	}
}

func TestRunAnalysisUsesSettings(t *testing.T) {
	ts := newTestServer(t)
	ts.settings.SetSettings(domain.Settings{
		Provider: domain.ProviderAnthropic,
		Model:    "claude-sonnet-4",
		Features: []string{"projectOptimization"},
	})
	ts.store.AddProject(domain.Project{Title: "Site"})

	rec := ts.request(t, http.MethodPost, "/api/analysis", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if ts.analyzer.gotReq.Provider != domain.ProviderAnthropic {
		t.Fatalf("unexpected provider %q", ts.analyzer.gotReq.Provider)
	}
	if len(ts.analyzer.gotReq.Features) != 1 || ts.analyzer.gotReq.Features[0] != "projectOptimization" {
		t.Fatalf("unexpected features %v", ts.analyzer.gotReq.Features)
	}
	projects, ok := ts.analyzer.gotReq.Context["projects"].([]domain.Project)
	if !ok || len(projects) != 1 {
		t.Fatalf("expected project context, got %#v", ts.analyzer.gotReq.Context["projects"])
	}
}

func TestRunAnalysisErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "rateLimit", err: &ai.RateLimitError{RetryAfter: 3 * time.Second}, wantStatus: http.StatusTooManyRequests},
		{name: "payment", err: &ai.AuthError{Status: http.StatusPaymentRequired, Message: "quota"}, wantStatus: http.StatusPaymentRequired},
		{name: "badKey", err: &ai.AuthError{Status: http.StatusUnauthorized, Message: "key"}, wantStatus: http.StatusBadGateway},
		{name: "parse", err: &ai.ParseError{Field: "learningInsights", Reason: "missing"}, wantStatus: http.StatusUnprocessableEntity},
		{name: "timeout", err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout},
		{name: "upstream", err: &ai.UpstreamError{Status: http.StatusBadGateway}, wantStatus: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.analyzer.err = tc.err

			rec := ts.request(t, http.MethodPost, "/api/analysis", nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.name == "rateLimit" && rec.Header().Get("Retry-After") == "" {
				t.Fatal("expected Retry-After header")
			}
		})
	}
}

func TestRunAnalysisWithoutAnalyzer(t *testing.T) {
	logger, _ := test.NewNullLogger()
	st := store.New(logger)
	settings := store.NewSettingsStore(t.TempDir(), domain.Settings{Provider: domain.ProviderOpenAI}, logger)

	e := echo.New()
	Register(e, Deps{
		Store:    st,
		Settings: settings,
		Pipeline: &fakePipeline{},
		Auth:     stubAuth{},
		Logger:   logger,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/analysis", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPut, "/api/settings", domain.Settings{
		Provider: domain.ProviderLocal,
		Endpoint: "http://localhost:11434",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = ts.request(t, http.MethodGet, "/api/settings", nil)
	var s domain.Settings
	decodeResponse(t, rec, &s)
	if s.Provider != domain.ProviderLocal || s.Endpoint != "http://localhost:11434" {
		t.Fatalf("unexpected settings: %+v", s)
	}
}

func TestStepStatusUpdateClearsCompletion(t *testing.T) {
	ts := newTestServer(t)
	p := ts.store.AddProject(domain.Project{Title: "Site"})
	step := ts.store.AddStep(p.ID, domain.Step{Title: "Wireframes"})
	ts.store.ToggleStepCompletion(p.ID, step.ID)

	status := domain.StepInProgress
	rec := ts.request(t, http.MethodPut, "/api/projects/"+p.ID+"/steps/"+step.ID, domain.StepUpdate{Status: &status})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	got, _ := ts.store.StepByID(p.ID, step.ID)
	if got.Completed || got.CompletedAt != 0 {
		t.Fatalf("completed step kept its flag after status change: %+v", got)
	}
	if got.Status != domain.StepInProgress {
		t.Fatalf("status = %q", got.Status)
	}
	proj, _ := ts.store.ProjectByID(p.ID)
	if proj.StepsCompleted != 0 || proj.Progress != 0 {
		t.Fatalf("progress not recomputed: %+v", proj)
	}
}

type changeCounter struct {
	mu sync.Mutex
	n  int
}

func (c *changeCounter) Record(store.Change) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *changeCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestEmptyUpdatesSkipTheStore(t *testing.T) {
	ts := newTestServer(t)
	p := ts.store.AddProject(domain.Project{Title: "Site"})
	step := ts.store.AddStep(p.ID, domain.Step{Title: "Wireframes"})

	counter := &changeCounter{}
	ts.store.AttachRecorder(counter)

	if rec := ts.request(t, http.MethodPut, "/api/projects/"+p.ID, struct{}{}); rec.Code != http.StatusNoContent {
		t.Fatalf("project update status = %d", rec.Code)
	}
	if rec := ts.request(t, http.MethodPut, "/api/projects/"+p.ID+"/steps/"+step.ID, struct{}{}); rec.Code != http.StatusNoContent {
		t.Fatalf("step update status = %d", rec.Code)
	}
	if got := counter.count(); got != 0 {
		t.Fatalf("empty updates produced %d change events", got)
	}
}

func TestSubmitRecordsAuthDuration(t *testing.T) {
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	ts := newTestServer(t)
	rec := ts.request(t, http.MethodPost, "/api/voice-notes", textSubmission{Text: "call the plumber"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attributesToMap(spans[0].Attributes)
	ms, ok := attrs["planai.submit.auth_ms"].(float64)
	if !ok || ms <= 0 {
		t.Fatalf("expected auth duration attribute, got %#v", attrs["planai.submit.auth_ms"])
	}
}

func TestPutSettingsRejectsUnknownProvider(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPut, "/api/settings", domain.Settings{Provider: "bard"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
