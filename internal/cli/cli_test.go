package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/taskweaver/internal/billing"
	"github.com/soyeahso/taskweaver/internal/config"
	"github.com/soyeahso/taskweaver/internal/llm"
	"github.com/soyeahso/taskweaver/internal/logging"
	"github.com/soyeahso/taskweaver/internal/taskexec"
)

// run executes the root command with args against an isolated home.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("TASKWEAVER_HOME", home)
	t.Setenv("TASKWEAVER_USER", "tester")
	t.Setenv("TASKWEAVER_DB_PATH", "")
	return home
}

// useProvider routes every model to client for the rest of the test.
func useProvider(t *testing.T, client *llm.MockClient) {
	t.Helper()
	prev := newRegistry
	newRegistry = func(_ *config.Config, log *logging.Logger) *llm.Registry {
		reg := llm.NewRegistry(log)
		reg.Register(client.ProviderName, client)
		reg.SetFallback(client.ProviderName)
		return reg
	}
	t.Cleanup(func() { newRegistry = prev })
}

func createAgentID(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, append([]string{"agent", "create"}, args...)...)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Created agent "))
	return strings.Fields(out)[2]
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"version", "serve", "status", "config", "models", "plans", "agent", "source", "task", "embed"} {
		assert.Contains(t, names, want)
	}
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, false, parseValue("FALSE"))
	assert.Equal(t, 8080, parseValue("8080"))
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, "gpt-4", parseValue("gpt-4"))
}

func TestPrintValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printValue(&buf, "hello"))
	require.NoError(t, printValue(&buf, map[string]any{"port": 18789}))
	assert.Equal(t, "hello\nport: 18789\n", buf.String())
}

func TestLimitString(t *testing.T) {
	assert.Equal(t, "unlimited", limitString(billing.Unlimited))
	assert.Equal(t, "5", limitString(5))
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	err := printResult(&buf, taskexec.Ok(taskexec.TaskResult{
		Output: "done", Model: "gpt-4", TokensUsed: 1500, CostCents: 6, DurationMs: 12,
	}))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "done\n")
	assert.Contains(t, buf.String(), "tokens=1500 cost=6.00")

	err = printResult(&buf, taskexec.Fail[taskexec.TaskResult](&taskexec.ServiceError{
		Kind: taskexec.KindRateLimit, Message: "slow down",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
}

func TestReadInput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("You are {input}"), 0o600))
	data, err := readInput(path)
	require.NoError(t, err)
	assert.Equal(t, "You are {input}", string(data))
}

func TestPlansCmd(t *testing.T) {
	isolate(t)
	out, err := run(t, "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "Basic  $15/month")
	assert.Contains(t, out, "Pro  $45/month  [popular]")
	assert.Contains(t, out, "agents=unlimited")
}

func TestModelsCmd(t *testing.T) {
	isolate(t)
	out, err := run(t, "models")
	require.NoError(t, err)
	for _, m := range taskexec.AvailableModels() {
		assert.Contains(t, out, m)
	}
	assert.Contains(t, out, "(default)")
}

func TestAgentCmd_Lifecycle(t *testing.T) {
	isolate(t)

	out, err := run(t, "agent", "create", "--name", "Helper", "--prompt", "Help with {input}", "--temperature", "0.2")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Created agent "))
	id := strings.Fields(out)[2]

	out, err = run(t, "agent", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Helper")
	assert.Contains(t, out, id)

	out, err = run(t, "agent", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"temperature": 0.2`)

	// basic plan allows a single agent
	_, err = run(t, "agent", "create", "--name", "Second", "--prompt", "x")
	require.ErrorIs(t, err, billing.ErrLimitReached)

	_, err = run(t, "--user", "someone-else", "agent", "show", id)
	require.Error(t, err)

	out, err = run(t, "agent", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted agent")
}

func TestAgentCreate_InvalidModelConfig(t *testing.T) {
	isolate(t)
	_, err := run(t, "agent", "create", "--name", "Hot", "--prompt", "x", "--temperature", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Temperature must be between 0 and 2")
}

func TestSourceCmd_AddAndSearch(t *testing.T) {
	isolate(t)

	out, err := run(t, "source", "add", "--name", "Handbook", "--content", "refunds are processed within five days")
	require.NoError(t, err)
	assert.Contains(t, out, "Added data source")

	out, err = run(t, "source", "search", "refunds")
	require.NoError(t, err)
	assert.Contains(t, out, "Handbook")

	out, err = run(t, "source", "search", "shipping")
	require.NoError(t, err)
	assert.Contains(t, out, "No data sources.")

	_, err = run(t, "source", "add", "--name", "Bad", "--type", "pdf")
	require.Error(t, err)
}

func TestConfigCmd_SetGetUnset(t *testing.T) {
	home := isolate(t)

	_, err := run(t, "config", "set", "gateway.port", "9000")
	require.NoError(t, err)
	out, err := run(t, "config", "get", "gateway.port")
	require.NoError(t, err)
	assert.Equal(t, "9000\n", out)

	_, err = run(t, "config", "set", "gateway.auth.token", "supersecrettoken")
	require.NoError(t, err)
	out, err = run(t, "config", "get", "gateway.auth.token")
	require.NoError(t, err)
	assert.NotContains(t, out, "supersecrettoken")
	out, err = run(t, "config", "get", "--reveal", "gateway.auth.token")
	require.NoError(t, err)
	assert.Equal(t, "supersecrettoken\n", out)

	_, err = run(t, "config", "unset", "gateway.port")
	require.NoError(t, err)
	_, err = run(t, "config", "get", "gateway.port")
	require.Error(t, err)

	assert.FileExists(t, filepath.Join(home, "config.yaml"))
}

func TestConfigCmd_SetRejectsInvalid(t *testing.T) {
	home := isolate(t)

	_, err := run(t, "config", "set", "logging.level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.NoFileExists(t, filepath.Join(home, "config.yaml"))
}

func TestTaskRun(t *testing.T) {
	isolate(t)
	var got llm.CompletionRequest
	useProvider(t, &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			got = req
			return &llm.CompletionResponse{
				Content: "Three bullet points.",
				Model:   req.Model,
				Usage:   &llm.Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
			}, nil
		},
	})
	id := createAgentID(t, "--name", "Summarizer", "--prompt", "Summarize {input}", "--model", "gpt-4")

	out, err := run(t, "task", "run", id, "the", "quarterly", "report")
	require.NoError(t, err)
	assert.Contains(t, out, "Three bullet points.\n")
	assert.Contains(t, out, "model=gpt-4 tokens=2000 cost=9.00")
	assert.Equal(t, "gpt-4", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[0].Content, "Summarize the quarterly report")
	assert.Equal(t, "the quarterly report", got.Messages[1].Content)

	out, err = run(t, "task", "list", "--status", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, "agent="+id)
}

func TestTaskRun_ProviderFailure(t *testing.T) {
	isolate(t)
	useProvider(t, &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "mock", Status: 429, Code: "rate_limit_exceeded", Message: "slow down"}
		},
	})
	id := createAgentID(t, "--name", "Summarizer", "--prompt", "Summarize {input}")

	_, err := run(t, "task", "run", id, "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(taskexec.KindRateLimit))

	out, err := run(t, "task", "list", "--status", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "agent="+id)
}

func TestTaskRun_UnknownAgent(t *testing.T) {
	isolate(t)
	useProvider(t, &llm.MockClient{ProviderName: "mock"})

	_, err := run(t, "task", "run", "no-such-agent", "hi")
	require.Error(t, err)
}

func TestEmbedCmd(t *testing.T) {
	isolate(t)
	var got llm.EmbeddingRequest
	useProvider(t, &llm.MockClient{
		ProviderName: "mock",
		EmbedFunc: func(_ context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
			got = req
			return &llm.EmbeddingResponse{Embedding: []float32{1, 2, 3, 4, 5, 6}, Model: req.Model}, nil
		},
	})

	out, err := run(t, "embed", "--model", "text-embedding-3-small", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Input)
	assert.Equal(t, "model=text-embedding-3-small dimensions=6 head=[1 2 3 4 5]\n", out)

	out, err = run(t, "embed", "--json", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, `"embedding"`)
}

func TestEmbedCmd_ProviderFailure(t *testing.T) {
	isolate(t)
	useProvider(t, &llm.MockClient{
		ProviderName: "mock",
		EmbedFunc: func(context.Context, llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
			return nil, &llm.ProviderError{Provider: "mock", Status: 401, Code: "invalid_api_key", Message: "bad key"}
		},
	})

	_, err := run(t, "embed", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(taskexec.KindInvalidAPIKey))
}
