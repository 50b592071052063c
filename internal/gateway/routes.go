package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/taskweaver/internal/billing"
	"github.com/soyeahso/taskweaver/internal/domain"
	"github.com/soyeahso/taskweaver/internal/store"
	"github.com/soyeahso/taskweaver/internal/taskexec"
	"github.com/soyeahso/taskweaver/internal/version"
)

// maxTaskListLimit caps GET /v1/tasks.
const maxTaskListLimit = 200

// registerRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /v1/models", s.handleListModels)
	mux.HandleFunc("POST /v1/models/validate", s.handleValidateModel)

	mux.HandleFunc("GET /v1/agents", s.handleListAgents)
	mux.HandleFunc("POST /v1/agents", s.handleCreateAgent)
	mux.HandleFunc("GET /v1/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("PUT /v1/agents/{id}", s.handleUpdateAgent)
	mux.HandleFunc("DELETE /v1/agents/{id}", s.handleDeleteAgent)
	mux.HandleFunc("POST /v1/agents/{id}/test", s.handleTestAgent)

	mux.HandleFunc("GET /v1/data-sources", s.handleListSources)
	mux.HandleFunc("POST /v1/data-sources", s.handleCreateSource)
	mux.HandleFunc("GET /v1/data-sources/{id}", s.handleGetSource)
	mux.HandleFunc("DELETE /v1/data-sources/{id}", s.handleDeleteSource)

	mux.HandleFunc("GET /v1/tasks", s.handleListTasks)
	mux.HandleFunc("POST /v1/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /v1/tasks/{id}/run", s.handleRunTask)

	mux.HandleFunc("POST /v1/embeddings", s.handleEmbeddings)
	mux.HandleFunc("GET /v1/plans", s.handlePlans)
	mux.HandleFunc("GET /v1/usage", s.handleUsage)

	mux.HandleFunc("/", handleNotFound)
}

// HealthResponse is the public health check body.
type HealthResponse struct {
	Status   string `json:"status"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	UptimeMs int64  `json:"uptime_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Name:     s.cfg.App.Name,
		Version:  version.Version,
		UptimeMs: s.uptime().Milliseconds(),
	})
}

// --- models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"models":  taskexec.Catalog(),
		"default": s.deps.Exec.ModelConfigFor(nil).Model,
	})
}

func (s *Server) handleValidateModel(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ModelConfig
	if err := decodeBody(w, r, &cfg); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, taskexec.ValidateModelConfig(cfg))
}

// --- agents ---

type agentRequest struct {
	Name           *string             `json:"name"`
	Description    *string             `json:"description"`
	PromptTemplate *string             `json:"prompt_template"`
	ModelConfig    *domain.ModelConfig `json:"model_config"`
	Status         *domain.AgentStatus `json:"status"`
}

// apply copies the set fields onto a and validates the result.
func (req agentRequest) apply(a *domain.Agent) error {
	if req.Name != nil {
		a.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.PromptTemplate != nil {
		a.PromptTemplate = *req.PromptTemplate
	}
	if req.ModelConfig != nil {
		a.ModelConfig = req.ModelConfig
	}
	if req.Status != nil {
		a.Status = *req.Status
	}

	if a.Name == "" {
		return invalid("name is required")
	}
	if strings.TrimSpace(a.PromptTemplate) == "" {
		return invalid("prompt_template is required")
	}
	if a.Status != "" && a.Status != domain.AgentActive && a.Status != domain.AgentPaused {
		return invalid("status must be %q or %q", domain.AgentActive, domain.AgentPaused)
	}
	if a.ModelConfig != nil {
		if v := taskexec.ValidateModelConfig(*a.ModelConfig); !v.IsValid {
			return invalid("%s", strings.Join(v.Errors, "; "))
		}
	}
	return nil
}

func (s *Server) ownedAgent(ctx context.Context, userID, id string) (*domain.Agent, error) {
	a, err := s.deps.Agents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Agents.ListByUser(r.Context(), userID(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, agents)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	a := &domain.Agent{UserID: userID(r)}
	if err := req.apply(a); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.deps.Billing.Check(r.Context(), a.UserID, billing.ResourceAgents); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.deps.Agents.Create(r.Context(), a); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.log.Info().Str("agent_id", a.ID).Str("user_id", a.UserID).Msg("agent created")
	writeData(w, http.StatusCreated, a)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.ownedAgent(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.ownedAgent(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req agentRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := req.apply(a); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.deps.Agents.Update(r.Context(), a); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.ownedAgent(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.deps.Agents.Delete(r.Context(), a.ID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.log.Info().Str("agent_id", a.ID).Msg("agent deleted")
	writeData(w, http.StatusOK, map[string]string{"id": a.ID})
}

type testAgentRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleTestAgent(w http.ResponseWriter, r *http.Request) {
	var req testAgentRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	res, err := s.deps.Runner.TestAgent(r.Context(), userID(r), r.PathValue("id"), req.Input)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeResult(w, res)
}

// --- data sources ---

type sourceRequest struct {
	Name    string                `json:"name"`
	Type    domain.DataSourceType `json:"type"`
	Content string                `json:"content"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	var (
		sources []domain.DataSource
		err     error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		sources, err = s.deps.Sources.Search(r.Context(), uid, store.TermsQuery(q), queryInt(r, "limit", 0))
	} else {
		sources, err = s.deps.Sources.ListByUser(r.Context(), uid)
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sources)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	ds := &domain.DataSource{
		UserID:  userID(r),
		Name:    strings.TrimSpace(req.Name),
		Type:    req.Type,
		Content: req.Content,
	}
	if ds.Type == "" {
		ds.Type = domain.DataSourceText
	}
	switch {
	case ds.Name == "":
		s.writeErr(w, r, invalid("name is required"))
		return
	case !ds.Type.Valid():
		s.writeErr(w, r, invalid("unknown data source type %q", ds.Type))
		return
	}
	if err := s.deps.Billing.Check(r.Context(), ds.UserID, billing.ResourceDataSources); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.deps.Sources.Create(r.Context(), ds); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, ds)
}

func (s *Server) ownedSource(ctx context.Context, userID, id string) (*domain.DataSource, error) {
	ds, err := s.deps.Sources.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ds.UserID != userID {
		return nil, store.ErrNotFound
	}
	return ds, nil
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	ds, err := s.ownedSource(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ds)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	ds, err := s.ownedSource(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.deps.Sources.Delete(r.Context(), ds.ID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": ds.ID})
}

// --- tasks ---

type taskRequest struct {
	AgentID       string   `json:"agent_id"`
	Input         string   `json:"input"`
	DataSourceIDs []string `json:"data_source_ids"`
	// Run executes the task before responding.
	Run bool `json:"run"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TaskFilter{
		UserID:  userID(r),
		AgentID: q.Get("agent_id"),
		Status:  domain.TaskStatus(q.Get("status")),
		Limit:   min(queryInt(r, "limit", 50), maxTaskListLimit),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		s.writeErr(w, r, invalid("unknown status %q", filter.Status))
		return
	}
	tasks, err := s.deps.Tasks.List(r.Context(), filter)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if req.AgentID == "" {
		s.writeErr(w, r, invalid("agent_id is required"))
		return
	}

	run := s.deps.Runner.Submit
	status := http.StatusCreated
	if req.Run {
		run = s.deps.Runner.Execute
		status = http.StatusOK
	}
	task, err := run(r.Context(), userID(r), req.AgentID, req.Input, req.DataSourceIDs)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, status, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tasks.Get(r.Context(), r.PathValue("id"))
	if err == nil && t.UserID != userID(r) {
		err = store.ErrNotFound
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Runner.Run(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

// --- embeddings, plans, usage ---

type embeddingRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	res, err := s.deps.Exec.GenerateEmbeddings(r.Context(), req.Text, req.Model)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeResult(w, res)
}

// PlanView is a plan with its display price.
type PlanView struct {
	billing.Plan
	DisplayPrice string `json:"display_price"`
}

func planViews() []PlanView {
	plans := billing.Plans()
	out := make([]PlanView, len(plans))
	for i, p := range plans {
		out[i] = PlanView{Plan: p, DisplayPrice: billing.FormatPrice(float64(p.Price), "USD")}
	}
	return out
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, planViews())
}

// UsageResponse reports a user's plan and consumption this month.
type UsageResponse struct {
	Plan        string         `json:"plan"`
	PeriodStart time.Time      `json:"period_start"`
	Limits      billing.Limits `json:"limits"`
	Current     billing.Limits `json:"current"`
	Ledger      map[string]int `json:"ledger"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	ctx, uid := r.Context(), userID(r)
	plan, err := s.deps.Billing.PlanFor(ctx, uid)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	since := domain.MonthStart(s.now())

	resp := UsageResponse{Plan: plan.ID, PeriodStart: since, Limits: plan.Limits}
	counts := []struct {
		dst   *int
		count func() (int, error)
	}{
		{&resp.Current.Agents, func() (int, error) { return s.deps.Agents.CountByUser(ctx, uid) }},
		{&resp.Current.DataSources, func() (int, error) { return s.deps.Sources.CountByUser(ctx, uid) }},
		{&resp.Current.TasksPerMonth, func() (int, error) { return s.deps.Tasks.CountSince(ctx, uid, since) }},
	}
	for _, c := range counts {
		if *c.dst, err = c.count(); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}
	if resp.Ledger, err = s.deps.Usage.Summary(ctx, uid, since); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// queryInt parses a positive integer query parameter, or returns def.
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
