package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/taskweaver/internal/billing"
	"github.com/soyeahso/taskweaver/internal/config"
	"github.com/soyeahso/taskweaver/internal/domain"
	"github.com/soyeahso/taskweaver/internal/hooks"
	"github.com/soyeahso/taskweaver/internal/llm"
	"github.com/soyeahso/taskweaver/internal/logging"
	"github.com/soyeahso/taskweaver/internal/runner"
	"github.com/soyeahso/taskweaver/internal/store"
	"github.com/soyeahso/taskweaver/internal/taskexec"
)

const testToken = "test-token-123"

type apiFixture struct {
	srv  *Server
	ts   *httptest.Server
	mock *llm.MockClient
	deps Deps
}

func newAPI(t *testing.T, mutate ...func(*config.Config)) *apiFixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.Auth.Token = testToken
	cfg.Gateway.RateLimit = config.RateLimit{}
	for _, m := range mutate {
		m(&cfg)
	}

	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock := &llm.MockClient{ProviderName: "mock"}
	reg := llm.NewRegistry(log)
	reg.Register("mock", mock)
	reg.SetFallback("mock")

	agents := store.NewAgentStore(db)
	sources := store.NewDataSourceStore(db)
	tasks := store.NewTaskStore(db)
	usage := store.NewUsageStore(db)
	enforcer := billing.NewEnforcer(store.NewUserStore(db), cfg.Billing.DefaultPlan, map[billing.Resource]billing.Counter{
		billing.ResourceAgents:      agents.CountByUser,
		billing.ResourceDataSources: sources.CountByUser,
		billing.ResourceTasksPerMonth: func(ctx context.Context, userID string) (int, error) {
			return tasks.CountSince(ctx, userID, domain.MonthStart(time.Now()))
		},
	}, log)
	exec := taskexec.New(reg, log)
	hm := hooks.NewManager(log)

	deps := Deps{
		Agents:  agents,
		Sources: sources,
		Tasks:   tasks,
		Usage:   usage,
		Billing: enforcer,
		Exec:    exec,
		Runner: runner.New(runner.Deps{
			Agents: agents, Sources: sources, Tasks: tasks, Usage: usage,
			Limits: enforcer, Exec: exec, Hooks: hm,
		}, runner.Options{}, log),
		Hooks: hm,
	}
	srv := New(cfg, deps, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &apiFixture{srv: srv, ts: ts, mock: mock, deps: deps}
}

type apiResponse struct {
	Status  int
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
}

func (f *apiFixture) do(t *testing.T, method, path, user string, body any) apiResponse {
	t.Helper()
	return f.doWithToken(t, testToken, method, path, user, body)
}

func (f *apiFixture) doWithToken(t *testing.T, token, method, path, user string, body any) apiResponse {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	out.Status = resp.StatusCode
	return out
}

func decodeData[T any](t *testing.T, r apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

func (f *apiFixture) createAgent(t *testing.T, user string) domain.Agent {
	t.Helper()
	r := f.do(t, http.MethodPost, "/v1/agents", user, map[string]any{
		"name":            "Summarizer",
		"prompt_template": "Summarize: {input}{context}",
		"model_config":    map[string]any{"model": "gpt-4", "temperature": 0.2},
	})
	require.Equal(t, http.StatusCreated, r.Status, "%+v", r.Error)
	return decodeData[domain.Agent](t, r)
}

func TestHealth_NoAuth(t *testing.T) {
	f := newAPI(t)
	resp, err := http.Get(f.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Success bool           `json:"success"`
		Data    HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.True(t, env.Success)
	assert.Equal(t, "ok", env.Data.Status)
	assert.Equal(t, config.DefaultAppName, env.Data.Name)
}

func TestAuthRequired(t *testing.T) {
	f := newAPI(t)

	resp, err := http.Get(f.ts.URL + "/v1/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+"/v1/agents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestAuthDisabled(t *testing.T) {
	f := newAPI(t, func(c *config.Config) { c.Gateway.Auth.Mode = "none" })
	resp, err := http.Get(f.ts.URL + "/v1/plans")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserTokenBindsScope(t *testing.T) {
	f := newAPI(t, func(c *config.Config) {
		c.Gateway.Auth.Users = []config.UserToken{{ID: "alice", Token: "alice-token"}}
	})

	r := f.doWithToken(t, "alice-token", http.MethodPost, "/v1/agents", "", map[string]any{
		"name":            "Mine",
		"prompt_template": "Do {input}",
	})
	require.Equal(t, http.StatusCreated, r.Status, "%+v", r.Error)
	created := decodeData[domain.Agent](t, r)
	assert.Equal(t, "alice", created.UserID)

	r = f.doWithToken(t, "alice-token", http.MethodGet, "/v1/agents", "bob", nil)
	assert.Equal(t, http.StatusForbidden, r.Status)
	assert.Equal(t, "forbidden", r.Error.Code)

	r = f.doWithToken(t, "alice-token", http.MethodGet, "/v1/agents", "alice", nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Len(t, decodeData[[]domain.Agent](t, r), 1)

	// the shared token still selects any user by header
	r = f.do(t, http.MethodGet, "/v1/agents", "alice", nil)
	assert.Len(t, decodeData[[]domain.Agent](t, r), 1)
	r = f.do(t, http.MethodGet, "/v1/agents", "bob", nil)
	assert.Empty(t, decodeData[[]domain.Agent](t, r))

	// a fresh user ID cannot be minted with a bound token
	r = f.doWithToken(t, "alice-token", http.MethodGet, "/v1/usage", "mallory", nil)
	assert.Equal(t, http.StatusForbidden, r.Status)
}

func TestNotFoundRoute(t *testing.T) {
	f := newAPI(t)
	r := f.do(t, http.MethodGet, "/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, r.Status)
	assert.False(t, r.Success)
	assert.Equal(t, "not_found", r.Error.Code)
}

func TestModels(t *testing.T) {
	f := newAPI(t)
	r := f.do(t, http.MethodGet, "/v1/models", "", nil)
	require.Equal(t, http.StatusOK, r.Status)

	data := decodeData[struct {
		Models  []taskexec.ModelInfo `json:"models"`
		Default string               `json:"default"`
	}](t, r)
	assert.Len(t, data.Models, len(taskexec.AvailableModels()))
	assert.Equal(t, taskexec.FallbackModel, data.Default)
}

func TestValidateModel(t *testing.T) {
	f := newAPI(t)
	r := f.do(t, http.MethodPost, "/v1/models/validate", "", map[string]any{
		"temperature": 3, "max_tokens": 0, "top_p": 0.5,
	})
	require.Equal(t, http.StatusOK, r.Status)
	v := decodeData[taskexec.Validation](t, r)
	assert.False(t, v.IsValid)
	assert.Equal(t, []string{"Temperature must be between 0 and 2", "Max tokens must be between 1 and 4000"}, v.Errors)
}

func TestAgentLifecycle(t *testing.T) {
	f := newAPI(t)
	a := f.createAgent(t, "alice")
	assert.Equal(t, "alice", a.UserID)
	assert.Equal(t, domain.AgentActive, a.Status)

	r := f.do(t, http.MethodGet, "/v1/agents", "alice", nil)
	assert.Len(t, decodeData[[]domain.Agent](t, r), 1)

	r = f.do(t, http.MethodGet, "/v1/agents/"+a.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, r.Status)

	r = f.do(t, http.MethodPut, "/v1/agents/"+a.ID, "alice", map[string]any{"status": "paused", "description": "weekly"})
	require.Equal(t, http.StatusOK, r.Status)
	updated := decodeData[domain.Agent](t, r)
	assert.Equal(t, domain.AgentPaused, updated.Status)
	assert.Equal(t, "Summarizer", updated.Name)
	assert.Equal(t, "weekly", updated.Description)

	r = f.do(t, http.MethodPut, "/v1/agents/"+a.ID, "alice", map[string]any{"model_config": map[string]any{"top_p": 2}})
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Contains(t, r.Error.Message, "Top P must be between 0 and 1")

	r = f.do(t, http.MethodDelete, "/v1/agents/"+a.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, r.Status)
	r = f.do(t, http.MethodGet, "/v1/agents/"+a.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, r.Status)
}

func TestCreateAgent_Validation(t *testing.T) {
	f := newAPI(t)
	r := f.do(t, http.MethodPost, "/v1/agents", "", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "invalid_request", r.Error.Code)
	assert.Equal(t, "prompt_template is required", r.Error.Message)

	r = f.do(t, http.MethodPost, "/v1/agents", "", map[string]any{"name": "x", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, r.Status)
}

func TestCreateAgent_PlanLimit(t *testing.T) {
	f := newAPI(t)
	f.createAgent(t, "alice")

	r := f.do(t, http.MethodPost, "/v1/agents", "alice", map[string]any{
		"name": "Second", "prompt_template": "{input}",
	})
	assert.Equal(t, http.StatusForbidden, r.Status)
	assert.Equal(t, "limit_reached", r.Error.Code)
	assert.Equal(t, "Your basic plan allows 1 agents.", r.Error.Message)
}

func TestTestAgent(t *testing.T) {
	f := newAPI(t)
	a := f.createAgent(t, "")

	r := f.do(t, http.MethodPost, "/v1/agents/"+a.ID+"/test", "", nil)
	require.Equal(t, http.StatusOK, r.Status)
	res := decodeData[taskexec.TaskResult](t, r)
	assert.Equal(t, "mock response", res.Output)
	assert.Equal(t, 15, res.TokensUsed)

	f.mock.CompleteFunc = func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, &llm.ProviderError{Provider: "openai", Status: 401, Code: "invalid_api_key"}
	}
	r = f.do(t, http.MethodPost, "/v1/agents/"+a.ID+"/test", "", map[string]any{"input": "hi"})
	assert.Equal(t, http.StatusBadGateway, r.Status)
	assert.Equal(t, "INVALID_API_KEY", r.Error.Code)
	assert.Equal(t, "Invalid OpenAI API key. Please check your configuration.", r.Error.Message)
}

func TestDataSources(t *testing.T) {
	f := newAPI(t, func(c *config.Config) { c.Billing.DefaultPlan = "pro" })

	r := f.do(t, http.MethodPost, "/v1/data-sources", "alice", map[string]any{
		"name": "Q3 notes", "content": "Revenue grew in the third quarter",
	})
	require.Equal(t, http.StatusCreated, r.Status)
	ds := decodeData[domain.DataSource](t, r)
	assert.Equal(t, domain.DataSourceText, ds.Type)

	r = f.do(t, http.MethodPost, "/v1/data-sources", "alice", map[string]any{"name": "x", "type": "pdf"})
	assert.Equal(t, http.StatusBadRequest, r.Status)

	r = f.do(t, http.MethodGet, "/v1/data-sources?q=revenue", "alice", nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Len(t, decodeData[[]domain.DataSource](t, r), 1)

	r = f.do(t, http.MethodGet, "/v1/data-sources?q=%22unbalanced", "alice", nil)
	assert.Equal(t, http.StatusOK, r.Status)

	r = f.do(t, http.MethodGet, "/v1/data-sources/"+ds.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, r.Status)

	r = f.do(t, http.MethodDelete, "/v1/data-sources/"+ds.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, r.Status)
	r = f.do(t, http.MethodGet, "/v1/data-sources", "alice", nil)
	assert.Empty(t, decodeData[[]domain.DataSource](t, r))
}

func TestTasks_SubmitAndRun(t *testing.T) {
	f := newAPI(t)
	a := f.createAgent(t, "alice")

	r := f.do(t, http.MethodPost, "/v1/tasks", "alice", map[string]any{"agent_id": a.ID, "input": "the report"})
	require.Equal(t, http.StatusCreated, r.Status, "%+v", r.Error)
	task := decodeData[domain.Task](t, r)
	assert.Equal(t, domain.TaskPending, task.Status)

	r = f.do(t, http.MethodPost, "/v1/tasks/"+task.ID+"/run", "alice", nil)
	require.Equal(t, http.StatusOK, r.Status)
	task = decodeData[domain.Task](t, r)
	assert.Equal(t, domain.TaskCompleted, task.Status)
	assert.Equal(t, "mock response", task.Output)

	r = f.do(t, http.MethodPost, "/v1/tasks/"+task.ID+"/run", "alice", nil)
	assert.Equal(t, http.StatusConflict, r.Status)

	r = f.do(t, http.MethodGet, "/v1/tasks/"+task.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, r.Status)

	r = f.do(t, http.MethodGet, "/v1/tasks?status=completed", "alice", nil)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Len(t, decodeData[[]domain.Task](t, r), 1)

	r = f.do(t, http.MethodGet, "/v1/tasks?status=bogus", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, r.Status)
}

func TestTasks_RunImmediately(t *testing.T) {
	f := newAPI(t)
	a := f.createAgent(t, "")

	f.mock.CompleteFunc = func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, &llm.ProviderError{Provider: "openai", Status: 400, Code: "context_length_exceeded"}
	}
	r := f.do(t, http.MethodPost, "/v1/tasks", "", map[string]any{"agent_id": a.ID, "input": "long", "run": true})
	require.Equal(t, http.StatusOK, r.Status)
	task := decodeData[domain.Task](t, r)
	assert.Equal(t, domain.TaskFailed, task.Status)
	assert.Equal(t, "CONTEXT_TOO_LONG", task.ErrorKind)

	r = f.do(t, http.MethodPost, "/v1/tasks", "", map[string]any{"agent_id": a.ID, "input": ""})
	assert.Equal(t, http.StatusBadRequest, r.Status)
}

func TestEmbeddings(t *testing.T) {
	f := newAPI(t)
	r := f.do(t, http.MethodPost, "/v1/embeddings", "", map[string]any{"text": "hello"})
	require.Equal(t, http.StatusOK, r.Status)
	res := decodeData[taskexec.EmbeddingResult](t, r)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, res.Embedding)
	assert.Equal(t, taskexec.DefaultEmbeddingModel, res.Model)

	r = f.do(t, http.MethodPost, "/v1/embeddings", "", map[string]any{"text": ""})
	assert.Equal(t, http.StatusBadRequest, r.Status)
}

func TestPlansAndUsage(t *testing.T) {
	f := newAPI(t)
	r := f.do(t, http.MethodGet, "/v1/plans", "", nil)
	require.Equal(t, http.StatusOK, r.Status)
	plans := decodeData[[]PlanView](t, r)
	require.Len(t, plans, 3)
	assert.Equal(t, "pro", plans[1].ID)
	assert.Equal(t, "$45", plans[1].DisplayPrice)

	a := f.createAgent(t, "alice")
	r = f.do(t, http.MethodPost, "/v1/tasks", "alice", map[string]any{"agent_id": a.ID, "input": "x", "run": true})
	require.Equal(t, http.StatusOK, r.Status)

	r = f.do(t, http.MethodGet, "/v1/usage", "alice", nil)
	require.Equal(t, http.StatusOK, r.Status)
	u := decodeData[UsageResponse](t, r)
	assert.Equal(t, "basic", u.Plan)
	assert.Equal(t, 1, u.Current.Agents)
	assert.Equal(t, 1, u.Current.TasksPerMonth)
	assert.Equal(t, 100, u.Limits.TasksPerMonth)
	assert.Equal(t, 1, u.Ledger[domain.UsageTasks])
	assert.Equal(t, 15, u.Ledger[domain.UsageTokens])
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		cfg  config.GatewayConfig
		want string
	}{
		{config.GatewayConfig{Bind: "loopback", Port: 18790}, "127.0.0.1:18790"},
		{config.GatewayConfig{Bind: "lan", Port: 9999}, "0.0.0.0:9999"},
		{config.GatewayConfig{Bind: "custom", CustomBindHost: "10.0.0.5", Port: 3000}, "10.0.0.5:3000"},
		{config.GatewayConfig{Bind: "custom", Port: 3000}, "0.0.0.0:3000"},
		{config.GatewayConfig{Bind: "unknown", Port: 5000}, "127.0.0.1:5000"},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Bind, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveBindAddr(tt.cfg))
		})
	}
}

func TestServe_EmitsLifecycleHooks(t *testing.T) {
	f := newAPI(t)

	var mu sync.Mutex
	var events []string
	for _, ev := range []string{hooks.EventGatewayStart, hooks.EventGatewayStop} {
		f.deps.Hooks.On(ev, "test", func(_ context.Context, p hooks.Payload) error {
			mu.Lock()
			events = append(events, p.Event)
			mu.Unlock()
			return nil
		})
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, ln.Addr().String(), f.srv.Addr())

	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{hooks.EventGatewayStart, hooks.EventGatewayStop}, events)
}
