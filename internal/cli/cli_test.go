package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/callflow/internal/config"
	"github.com/aretw0/callflow/pkg/domain"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestApp(t *testing.T, opts Options) *App {
	t.Helper()
	if opts.LogOutput == nil {
		opts.LogOutput = &bytes.Buffer{}
	}
	app, err := NewApp(opts)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close()) })
	return app
}

func TestNewApp_Defaults(t *testing.T) {
	app := newTestApp(t, Options{})

	assert.Equal(t, config.BackendMemory, app.Config.Store.Backend)
	assert.NotNil(t, app.Metrics)

	ctx := context.Background()
	_, err := app.Engine.Start(ctx, "c1", nil)
	require.NoError(t, err)
	st, tr, err := app.Engine.Turn(ctx, "c1", "yes, go ahead")
	require.NoError(t, err)
	assert.Equal(t, domain.WaypointDiagnosis, tr.To)
	assert.Equal(t, 1, st.Turns)
}

func TestNewApp_DebugLogsTransitions(t *testing.T) {
	var logs bytes.Buffer
	app := newTestApp(t, Options{Debug: true, LogOutput: &logs})

	ctx := context.Background()
	_, err := app.Engine.Start(ctx, "c1", nil)
	require.NoError(t, err)
	_, _, err = app.Engine.Turn(ctx, "c1", "yes")
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "transition")
	assert.Contains(t, logs.String(), "Application wired")
}

func TestNewApp_FileStoreWithPrivacy(t *testing.T) {
	dir := t.TempDir()
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	cfgPath := writeFile(t, "callflow.yaml", `
store:
  backend: file
  path: `+dir+`
privacy:
  mask_pii: true
  encryption_key: `+key+`
`)
	app := newTestApp(t, Options{ConfigPath: cfgPath})

	ctx := context.Background()
	_, err := app.Engine.Start(ctx, "c1", map[string]any{"patient_name": "Asha"})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "c1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "__encrypted__")
	assert.NotContains(t, string(raw), "Asha")

	st, err := app.Engine.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "***", st.Metadata["patient_name"])
	assert.Equal(t, domain.WaypointOpening, st.Waypoint)
}

func TestNewApp_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfgPath := writeFile(t, "callflow.yaml", `
store:
  backend: redis
  redis:
    addr: `+mr.Addr()+`
    prefix: "test:"
`)
	app := newTestApp(t, Options{ConfigPath: cfgPath})

	ctx := context.Background()
	_, err := app.Engine.Start(ctx, "c1", nil)
	require.NoError(t, err)
	_, _, err = app.Engine.Turn(ctx, "c1", "I am busy right now")
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:call:c1"))
	st, err := app.Engine.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.WaypointCallback, st.Waypoint)
}

func TestNewApp_Errors(t *testing.T) {
	t.Run("missing script", func(t *testing.T) {
		_, err := NewApp(Options{ScriptPath: filepath.Join(t.TempDir(), "nope.yaml"), LogOutput: &bytes.Buffer{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error loading script")
	})

	t.Run("invalid config", func(t *testing.T) {
		path := writeFile(t, "callflow.yaml", "store:\n  backend: tape\n")
		_, err := NewApp(Options{ConfigPath: path, LogOutput: &bytes.Buffer{}})
		require.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("bad pii pattern", func(t *testing.T) {
		path := writeFile(t, "callflow.yaml", "privacy:\n  mask_pii: true\n  value_patterns: [\"(\"]\n")
		_, err := NewApp(Options{ConfigPath: path, LogOutput: &bytes.Buffer{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "privacy")
	})
}

func TestRunRehearsal(t *testing.T) {
	app := newTestApp(t, Options{})
	input := strings.Join([]string{
		"yes sure, go ahead",
		"yes I have discussed it with my doctor",
		"it is breast cancer stage 2",
		"not yet, we are planning",
		"probably next month",
		"I am from Pune and yes I can travel",
		"thank you",
	}, "\n") + "\n"

	var out bytes.Buffer
	res, err := RunRehearsal(context.Background(), app, RehearseOptions{
		CallID:   "r1",
		Metadata: `{"patient_name":"Asha"}`,
		Banner:   true,
		Report:   true,
		Input:    strings.NewReader(input),
		Output:   &out,
	})
	require.NoError(t, err)
	require.True(t, res.Finalized())

	assert.Contains(t, out.String(), ">>> Call 'r1' connected.")
	assert.Contains(t, out.String(), "Asha")
	assert.Contains(t, out.String(), ">>> Call finished with 7 stages recorded.")
	assert.Contains(t, out.String(), `"roomName": "r1"`)
}

func TestRunRehearsal_HangUp(t *testing.T) {
	app := newTestApp(t, Options{})

	var out bytes.Buffer
	res, err := RunRehearsal(context.Background(), app, RehearseOptions{
		Input:  strings.NewReader("yes sure, go ahead\n"),
		Output: &out,
	})
	require.NoError(t, err, "a hang-up is a clean exit")
	assert.True(t, res.Has(domain.StageOpening))
	assert.Contains(t, out.String(), "Caller hung up after 1 stages.")
	assert.Contains(t, out.String(), "'rehearsal-")
}

func TestRunRehearsal_BadMetadata(t *testing.T) {
	app := newTestApp(t, Options{})
	_, err := RunRehearsal(context.Background(), app, RehearseOptions{
		Metadata: "{",
		Input:    strings.NewReader(""),
		Output:   &bytes.Buffer{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--metadata")
}

func TestNewHandler(t *testing.T) {
	app := newTestApp(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler, stop := NewHandler(ctx, app, ServeOptions{MCP: true, PublicURL: "http://example.test"})
	srv := httptest.NewServer(handler)
	defer func() {
		srv.Close()
		stop()
	}()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Messages without an SSE session are rejected by the MCP transport.
	resp, err = http.Post(srv.URL+"/message", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewHandler_WithoutMCP(t *testing.T) {
	app := newTestApp(t, Options{})
	handler, stop := NewHandler(context.Background(), app, ServeOptions{})
	defer stop()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	app := newTestApp(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- RunServe(ctx, app, ServeOptions{Listen: "127.0.0.1:0"}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}

func TestPublicURL(t *testing.T) {
	app := newTestApp(t, Options{})
	assert.Equal(t, "http://localhost:8080", publicURL(app, ServeOptions{}))
	assert.Equal(t, "http://localhost:9000", publicURL(app, ServeOptions{Listen: ":9000"}))
	assert.Equal(t, "https://calls.example", publicURL(app, ServeOptions{Listen: ":9000", PublicURL: "https://calls.example"}))
}

func TestRenderScript(t *testing.T) {
	app := newTestApp(t, Options{})

	var raw bytes.Buffer
	require.NoError(t, RenderScript(app, &raw, ScriptOptions{Raw: true}))
	assert.Contains(t, raw.String(), "| collect | treatment |")

	var rendered bytes.Buffer
	require.NoError(t, RenderScript(app, &rendered, ScriptOptions{Style: "notty"}))
	assert.Contains(t, rendered.String(), "Stages")
}

func TestRenderGraph(t *testing.T) {
	app := newTestApp(t, Options{})
	ctx := context.Background()

	var plain bytes.Buffer
	require.NoError(t, RenderGraph(ctx, app, &plain, ""))
	assert.Contains(t, plain.String(), "graph TD")
	assert.NotContains(t, plain.String(), "classDef")

	_, err := app.Engine.Start(ctx, "c1", nil)
	require.NoError(t, err)
	_, _, err = app.Engine.Turn(ctx, "c1", "yes")
	require.NoError(t, err)

	var overlay bytes.Buffer
	require.NoError(t, RenderGraph(ctx, app, &overlay, "c1"))
	assert.Contains(t, overlay.String(), "class opening visited;")
	assert.Contains(t, overlay.String(), "class diagnosis current;")

	assert.Error(t, RenderGraph(ctx, app, &bytes.Buffer{}, "missing"))
}

func TestClassify(t *testing.T) {
	app := newTestApp(t, Options{})

	var out bytes.Buffer
	require.NoError(t, Classify(app, &out, "I am busy right now", "opening"))
	var got ClassifyOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, domain.SignalBusy, got.Effective)
	assert.Equal(t, domain.WaypointCallback, got.Next)

	out.Reset()
	require.NoError(t, Classify(app, &out, "I am busy right now", ""))
	assert.NotContains(t, out.String(), `"next"`)

	assert.ErrorIs(t, Classify(app, &out, "hi", "lunch"), domain.ErrUnknownWaypoint)
}

func TestSessions(t *testing.T) {
	app := newTestApp(t, Options{})
	ctx := context.Background()
	_, err := app.Engine.Start(ctx, "c1", nil)
	require.NoError(t, err)

	var list bytes.Buffer
	require.NoError(t, ListSessions(ctx, app, &list))
	assert.Equal(t, "c1\n", list.String())

	var show bytes.Buffer
	require.NoError(t, ShowSession(ctx, app, &show, "c1"))
	assert.Contains(t, show.String(), `"waypoint": "opening"`)

	require.NoError(t, DeleteSession(ctx, app, "c1"))
	assert.Error(t, ShowSession(ctx, app, &bytes.Buffer{}, "c1"))
}

func TestHandleExecutionError(t *testing.T) {
	assert.NoError(t, handleExecutionError(nil))
	assert.NoError(t, handleExecutionError(context.Canceled))
	err := assert.AnError
	assert.Equal(t, err, handleExecutionError(err))
}
