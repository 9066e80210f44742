package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"planai-api/ai"
	"planai-api/domain"
)

const (
	maxJSONBody  = 1 << 20
	maxAudioBody = 25 << 20

	idempotencyHeader = "Idempotency-Key"
)

// Deps bundles the collaborators the HTTP layer needs.
type Deps struct {
	Store    Store
	Settings SettingsStore
	Pipeline Pipeline
	Analyzer Analyzer
	Auth     Authenticator
	Deduper  Deduper
	Logger   *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", healthz())

	g := e.Group("/api", requireAuth(d.Auth))

	g.GET("/projects", listProjects(d.Store))
	g.POST("/projects", createProject(d.Store))
	g.GET("/projects/:id", getProject(d.Store))
	g.PUT("/projects/:id", updateProject(d.Store))
	g.DELETE("/projects/:id", deleteProject(d.Store))
	g.GET("/projects/:id/health", projectHealth(d.Store))

	g.GET("/projects/:id/steps", listSteps(d.Store))
	g.POST("/projects/:id/steps", createStep(d.Store))
	g.PUT("/projects/:id/steps/:stepId", updateStep(d.Store))
	g.DELETE("/projects/:id/steps/:stepId", deleteStep(d.Store))
	g.POST("/projects/:id/steps/:stepId/toggle", toggleStep(d.Store))

	g.GET("/projects/:id/learnings", listLearnings(d.Store))
	g.POST("/learnings", createLearning(d.Store))
	g.PUT("/learnings/:id", updateLearning(d.Store))
	g.DELETE("/learnings/:id", deleteLearning(d.Store))

	g.GET("/projects/:id/code-issues", listCodeIssues(d.Store))
	g.POST("/code-issues", createCodeIssue(d.Store))
	g.PUT("/code-issues/:id", updateCodeIssue(d.Store))
	g.POST("/code-issues/:id/resolve", resolveCodeIssue(d.Store))
	g.DELETE("/code-issues/:id", deleteCodeIssue(d.Store))

	g.GET("/tasks", listTasks(d.Store))
	g.POST("/tasks", createTask(d.Store))
	g.PUT("/tasks/:id", updateTask(d.Store))
	g.POST("/tasks/:id/toggle", toggleTask(d.Store))
	g.DELETE("/tasks/:id", deleteTask(d.Store))

	g.GET("/voice-notes", listVoiceNotes(d.Store))
	g.POST("/voice-notes", submitVoiceNote(d.Pipeline, d.Deduper, d.Logger))
	g.GET("/submissions/:id", submissionStatus(d.Pipeline))

	g.POST("/analysis", runAnalysis(d.Analyzer, d.Settings, d.Store))

	g.GET("/settings", getSettings(d.Settings))
	g.PUT("/settings", putSettings(d.Settings))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

const (
	userIDKey       = "userID"
	authDurationKey = "authDuration"
)

func requireAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
			if err != nil {
				return c.String(http.StatusUnauthorized, err.Error())
			}
			c.Set(userIDKey, userID)
			c.Set(authDurationKey, time.Since(start))
			return next(c)
		}
	}
}

func decodeJSON(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, maxJSONBody)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ---- projects ----

func listProjects(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.Projects())
	}
}

func getProject(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := store.ProjectByID(c.Param("id"))
		if !ok {
			return c.String(http.StatusNotFound, "project not found")
		}
		return c.JSON(http.StatusOK, p)
	}
}

func createProject(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var p domain.Project
		if err := decodeJSON(c, &p); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if msg := validateNewProject(p); msg != "" {
			return c.String(http.StatusBadRequest, msg)
		}
		return c.JSON(http.StatusCreated, store.AddProject(p))
	}
}

func updateProject(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var u domain.ProjectUpdate
		if err := decodeJSON(c, &u); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if msg := validateProjectUpdate(u); msg != "" {
			return c.String(http.StatusBadRequest, msg)
		}
		if u.Empty() {
			return c.NoContent(http.StatusNoContent)
		}
		store.UpdateProject(c.Param("id"), u)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteProject(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		store.DeleteProject(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

func projectHealth(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		p, ok := store.ProjectByID(id)
		if !ok {
			return c.String(http.StatusNotFound, "project not found")
		}
		issues := store.CodeIssuesByProject(id)
		learnings := store.LearningsByProject(id)
		return c.JSON(http.StatusOK, domain.ComputeHealth(p, issues, len(learnings)))
	}
}

// ---- steps ----

func listSteps(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.StepsByProject(c.Param("id")))
	}
}

func createStep(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var st domain.Step
		if err := decodeJSON(c, &st); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if msg := validateNewStep(st); msg != "" {
			return c.String(http.StatusBadRequest, msg)
		}
		return c.JSON(http.StatusCreated, store.AddStep(c.Param("id"), st))
	}
}

func updateStep(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var u domain.StepUpdate
		if err := decodeJSON(c, &u); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if msg := validateStepUpdate(u); msg != "" {
			return c.String(http.StatusBadRequest, msg)
		}
		if u.Empty() {
			return c.NoContent(http.StatusNoContent)
		}
		store.UpdateStep(c.Param("id"), c.Param("stepId"), u)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteStep(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		store.DeleteStep(c.Param("id"), c.Param("stepId"))
		return c.NoContent(http.StatusNoContent)
	}
}

func toggleStep(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		store.ToggleStepCompletion(c.Param("id"), c.Param("stepId"))
		return c.NoContent(http.StatusNoContent)
	}
}

// ---- learnings ----

func listLearnings(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.LearningsByProject(c.Param("id")))
	}
}

func createLearning(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var l domain.Learning
		if err := decodeJSON(c, &l); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if msg := validateNewLearning(l); msg != "" {
			return c.String(http.StatusBadRequest, msg)
		}
		return c.JSON(http.StatusCreated, store.AddLearning(l))
	}
}

func updateLearning(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var u domain.LearningUpdate
		if err := decodeJSON(c, &u); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if u.Type != nil && !u.Type.Valid() {
			return c.String(http.StatusBadRequest, "invalid learning type")
		}
		store.UpdateLearning(c.Param("id"), u)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteLearning(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		store.DeleteLearning(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

// ---- code issues ----

func listCodeIssues(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.CodeIssuesByProject(c.Param("id")))
	}
}

func createCodeIssue(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var ci domain.CodeIssue
		if err := decodeJSON(c, &ci); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if msg := validateNewCodeIssue(ci); msg != "" {
			return c.String(http.StatusBadRequest, msg)
		}
		return c.JSON(http.StatusCreated, store.AddCodeIssue(ci))
	}
}

func updateCodeIssue(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var u domain.CodeIssueUpdate
		if err := decodeJSON(c, &u); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if u.Type != nil && !u.Type.Valid() {
			return c.String(http.StatusBadRequest, "invalid issue type")
		}
		if u.Severity != nil && !u.Severity.Valid() {
			return c.String(http.StatusBadRequest, "invalid severity")
		}
		store.UpdateCodeIssue(c.Param("id"), u)
		return c.NoContent(http.StatusNoContent)
	}
}

func resolveCodeIssue(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		store.ResolveCodeIssue(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteCodeIssue(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		store.DeleteCodeIssue(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

// ---- tasks ----

func listTasks(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if projectID := c.QueryParam("projectId"); projectID != "" {
			return c.JSON(http.StatusOK, store.TasksByProject(projectID))
		}
		return c.JSON(http.StatusOK, store.Tasks())
	}
}

func createTask(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var t domain.Task
		if err := decodeJSON(c, &t); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if msg := validateNewTask(t); msg != "" {
			return c.String(http.StatusBadRequest, msg)
		}
		return c.JSON(http.StatusCreated, store.AddTask(t))
	}
}

func updateTask(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var u domain.TaskUpdate
		if err := decodeJSON(c, &u); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if u.Priority != nil && !u.Priority.Valid() {
			return c.String(http.StatusBadRequest, "invalid priority")
		}
		store.UpdateTask(c.Param("id"), u)
		return c.NoContent(http.StatusNoContent)
	}
}

func toggleTask(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		store.ToggleTask(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		store.DeleteTask(c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

// ---- voice notes ----

func listVoiceNotes(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.VoiceNotes())
	}
}

type submitResponse struct {
	SubmissionID string `json:"submissionId"`
}

type textSubmission struct {
	Text string `json:"text"`
}

// submitVoiceNote accepts either a multipart upload with an "audio" file or
// a JSON body with a "text" field for typed quick capture. Processing is
// asynchronous; the response carries a submission ID to poll.
func submitVoiceNote(pipeline Pipeline, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newSubmitRequestMetrics(ctx, logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		userID, _ := c.Get(userIDKey).(string)
		if d, ok := c.Get(authDurationKey).(time.Duration); ok {
			metrics.ObserveAuth(d)
		}

		var audio []byte
		var filename, text string

		decodeStart := time.Now()
		contentType := c.Request().Header.Get(echo.HeaderContentType)
		if isMultipart(contentType) {
			fh, fhErr := c.FormFile("audio")
			if fhErr != nil {
				text = c.FormValue("text")
			} else {
				audio, filename, err = readUpload(fh)
				if err != nil {
					metrics.SetErrorStage("read_upload")
					return c.String(http.StatusBadRequest, "unreadable audio upload")
				}
			}
		} else {
			var ts textSubmission
			if decodeErr := decodeJSON(c, &ts); decodeErr != nil {
				metrics.SetErrorStage("decode")
				err = c.String(http.StatusBadRequest, "invalid body")
				return err
			}
			text = ts.Text
		}
		metrics.ObserveDecode(time.Since(decodeStart))
		metrics.SetAudioBytes(len(audio))

		if len(audio) == 0 && text == "" {
			metrics.SetErrorStage("empty_submission")
			err = c.String(http.StatusBadRequest, "audio or text required")
			return err
		}

		key := c.Request().Header.Get(idempotencyHeader)
		if deduper != nil && key != "" {
			dedupeStart := time.Now()
			fresh, dedupeErr := deduper.Add(ctx, userID, key)
			metrics.ObserveDedupe(time.Since(dedupeStart))
			if dedupeErr != nil {
				metrics.SetErrorStage("dedupe")
				c.Logger().Error(dedupeErr)
				err = c.String(http.StatusInternalServerError, "dedupe check failed")
				return err
			}
			if !fresh {
				metrics.SetErrorStage("duplicate")
				err = c.String(http.StatusConflict, "duplicate submission")
				return err
			}
		}

		var id string
		if len(audio) > 0 {
			id = pipeline.Submit(audio, filename)
		} else {
			id = pipeline.SubmitText(text)
		}
		if id == "" {
			if deduper != nil && key != "" {
				if remErr := deduper.Remove(context.WithoutCancel(ctx), userID, key); remErr != nil {
					c.Logger().Error(remErr)
				}
			}
			metrics.SetErrorStage("submit")
			err = c.String(http.StatusServiceUnavailable, "pipeline unavailable")
			return err
		}
		metrics.SetTextFallback(len(audio) == 0)
		metrics.SetSubmissionID(id)

		err = c.JSON(http.StatusAccepted, submitResponse{SubmissionID: id})
		return err
	}
}

func isMultipart(contentType string) bool {
	return strings.HasPrefix(contentType, "multipart/")
}

func readUpload(fh *multipart.FileHeader) ([]byte, string, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxAudioBody))
	if err != nil {
		return nil, "", err
	}
	return data, fh.Filename, nil
}

func submissionStatus(pipeline Pipeline) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, ok := pipeline.Status(c.Param("id"))
		if !ok {
			return c.String(http.StatusNotFound, "submission not found")
		}
		return c.JSON(http.StatusOK, st)
	}
}

// ---- analysis ----

type analysisRequestBody struct {
	Features []string `json:"features,omitempty"`
}

func runAnalysis(analyzer Analyzer, settings SettingsStore, store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if analyzer == nil {
			return c.String(http.StatusServiceUnavailable, "analysis endpoint not configured")
		}

		var body analysisRequestBody
		if c.Request().ContentLength != 0 {
			if err := decodeJSON(c, &body); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
		}

		s := settings.Settings()
		features := body.Features
		if len(features) == 0 {
			features = s.Features
		}

		req := domain.AnalysisRequest{
			Provider: s.Provider,
			Model:    s.Model,
			Features: features,
			Context: map[string]any{
				"projects":   store.Projects(),
				"tasks":      store.Tasks(),
				"voiceNotes": len(store.VoiceNotes()),
			},
		}

		report, err := analyzer.Analyze(c.Request().Context(), req)
		if err != nil {
			return analysisError(c, err)
		}
		return c.JSON(http.StatusOK, report)
	}
}

// analysisError translates the provider error taxonomy into HTTP statuses
// the client UI distinguishes.
func analysisError(c echo.Context, err error) error {
	var rl *ai.RateLimitError
	if errors.As(err, &rl) {
		if rl.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After", rl.RetryAfter.String())
		}
		return c.String(http.StatusTooManyRequests, "provider rate limited")
	}
	var auth *ai.AuthError
	if errors.As(err, &auth) {
		if auth.Status == http.StatusPaymentRequired {
			return c.String(http.StatusPaymentRequired, "provider billing exhausted")
		}
		return c.String(http.StatusBadGateway, "provider rejected credentials")
	}
	var parse *ai.ParseError
	if errors.As(err, &parse) {
		return c.String(http.StatusUnprocessableEntity, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return c.String(http.StatusGatewayTimeout, "provider timed out")
	}
	c.Logger().Error(err)
	return c.String(http.StatusBadGateway, "provider request failed")
}

// ---- settings ----

func getSettings(settings SettingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, settings.Settings())
	}
}

func putSettings(settings SettingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var s domain.Settings
		if err := decodeJSON(c, &s); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if !s.Provider.Valid() {
			return c.String(http.StatusBadRequest, "invalid provider")
		}
		settings.SetSettings(s)
		return c.NoContent(http.StatusNoContent)
	}
}

// ---- validation ----

func validateNewProject(p domain.Project) string {
	if p.Title == "" {
		return "title required"
	}
	if p.Status != "" && !p.Status.Valid() {
		return "invalid status"
	}
	if p.Priority != "" && !p.Priority.Valid() {
		return "invalid priority"
	}
	return ""
}

func validateProjectUpdate(u domain.ProjectUpdate) string {
	if u.Title != nil && *u.Title == "" {
		return "title cannot be empty"
	}
	if u.Status != nil && !u.Status.Valid() {
		return "invalid status"
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return "invalid priority"
	}
	return ""
}

func validateNewStep(st domain.Step) string {
	if st.Title == "" {
		return "title required"
	}
	if st.Status != "" && !st.Status.Valid() {
		return "invalid status"
	}
	if st.Priority != "" && !st.Priority.ValidForStep() {
		return "invalid priority"
	}
	if st.EstimatedHours < 0 {
		return "estimated hours cannot be negative"
	}
	return ""
}

func validateStepUpdate(u domain.StepUpdate) string {
	if u.Title != nil && *u.Title == "" {
		return "title cannot be empty"
	}
	if u.Status != nil && !u.Status.Valid() {
		return "invalid status"
	}
	if u.Priority != nil && !u.Priority.ValidForStep() {
		return "invalid priority"
	}
	if u.EstimatedHours != nil && *u.EstimatedHours < 0 {
		return "estimated hours cannot be negative"
	}
	return ""
}

func validateNewLearning(l domain.Learning) string {
	if l.Title == "" {
		return "title required"
	}
	if l.ProjectID == "" {
		return "projectId required"
	}
	if !l.Type.Valid() {
		return "invalid learning type"
	}
	return ""
}

func validateNewCodeIssue(ci domain.CodeIssue) string {
	if ci.File == "" {
		return "file required"
	}
	if ci.ProjectID == "" {
		return "projectId required"
	}
	if !ci.Type.Valid() {
		return "invalid issue type"
	}
	if !ci.Severity.Valid() {
		return "invalid severity"
	}
	return ""
}

func validateNewTask(t domain.Task) string {
	if t.Title == "" {
		return "title required"
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return "invalid priority"
	}
	return ""
}
