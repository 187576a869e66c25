package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganrf/OpenGridGen/internal/generation"
	"github.com/loganrf/OpenGridGen/internal/kernel/csg"
	"github.com/loganrf/OpenGridGen/internal/outcome"
	"github.com/loganrf/OpenGridGen/internal/scaling"
	"github.com/loganrf/OpenGridGen/internal/settings"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSubmitter returns a canned outcome and writes body to the output path
// on success.
type fakeSubmitter struct {
	mu   sync.Mutex
	out  outcome.Outcome
	body string
	reqs []generation.Request
}

func (f *fakeSubmitter) Submit(_ context.Context, req generation.Request) outcome.Outcome {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.out.Status == outcome.StatusSuccess && req.OutputPath != "" {
		if err := os.WriteFile(req.OutputPath, []byte(f.body), 0o644); err != nil {
			return outcome.FromError(err)
		}
	}
	return f.out
}

func newTestServer(t *testing.T, svc Submitter) (*Server, *settings.Store, string) {
	t.Helper()
	store, err := settings.NewStore(scaling.DefaultSettings())
	require.NoError(t, err)
	dir := t.TempDir()
	return New(svc, store, dir), store, dir
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestHealthCheck(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeSubmitter{})
	w := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeSubmitter{})
	w := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "opengridgen_tasks_in_flight")
}

func TestListParts(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeSubmitter{})
	w := do(s, http.MethodGet, "/api/v1/parts", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	listed, ok := body["parts"].(map[string]any)
	require.True(t, ok)
	for _, k := range []string{"box", "baseplate", "lid", "hinge", "tube_adapter", "gear"} {
		assert.Contains(t, listed, k)
	}
}

func TestPartInfo_Success(t *testing.T) {
	fake := &fakeSubmitter{out: outcome.Success(outcome.Result{Dims: outcome.Dimensions{X: 50, Y: 75, Z: 10}})}
	s, _, _ := newTestServer(t, fake)

	w := do(s, http.MethodPost, "/api/v1/parts/box/info", `{"length":2,"width":3,"height":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	dims := body["dimensions"].(map[string]any)
	assert.EqualValues(t, 50, dims["x"])

	require.Len(t, fake.reqs, 1)
	assert.Equal(t, "box", string(fake.reqs[0].Kind))
	assert.JSONEq(t, `{"length":2,"width":3,"height":2}`, string(fake.reqs[0].Params))
	assert.Empty(t, fake.reqs[0].OutputPath)
}

func TestPartInfo_FailureCodes(t *testing.T) {
	for name, tc := range map[string]struct {
		out  outcome.Outcome
		code int
	}{
		"validation": {outcome.Outcome{Status: outcome.StatusValidationFailure, Reason: outcome.ReasonParameter, Message: "length must be >= 1"}, http.StatusUnprocessableEntity},
		"timeout":    {outcome.Outcome{Status: outcome.StatusTimeout, Message: "timed out after 2m0s"}, http.StatusRequestTimeout},
		"fault":      {outcome.Outcome{Status: outcome.StatusFault, Message: "worker crashed"}, http.StatusInternalServerError},
	} {
		t.Run(name, func(t *testing.T) {
			s, _, _ := newTestServer(t, &fakeSubmitter{out: tc.out})
			w := do(s, http.MethodPost, "/api/v1/parts/gear/info", "")
			assert.Equal(t, tc.code, w.Code)

			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.out.Message, body["error"])
			assert.Equal(t, string(tc.out.Status), body["status"])
		})
	}
}

func TestExportPart_StreamsAndRemovesFile(t *testing.T) {
	fake := &fakeSubmitter{
		out:  outcome.Success(outcome.Result{Dims: outcome.Dimensions{X: 1, Y: 2, Z: 3}}),
		body: "solid-bytes",
	}
	s, _, dir := newTestServer(t, fake)

	w := do(s, http.MethodPost, "/api/v1/parts/hinge/export?format=stl", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "solid-bytes", w.Body.String())
	assert.Equal(t, "1.00x2.00x3.00", w.Header().Get("X-Dimensions"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "hinge.stl")

	require.Len(t, fake.reqs, 1)
	assert.Equal(t, "stl", fake.reqs[0].Format)
	assert.True(t, strings.HasPrefix(fake.reqs[0].OutputPath, dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExportPart_BadFormat(t *testing.T) {
	fake := &fakeSubmitter{}
	s, _, _ := newTestServer(t, fake)

	w := do(s, http.MethodPost, "/api/v1/parts/box/export?format=obj", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, fake.reqs)
}

func TestExportPart_FailureLeavesNothing(t *testing.T) {
	fake := &fakeSubmitter{out: outcome.Outcome{Status: outcome.StatusTimeout, Message: "timed out"}}
	s, _, dir := newTestServer(t, fake)

	w := do(s, http.MethodPost, "/api/v1/parts/gear/export", "")
	assert.Equal(t, http.StatusRequestTimeout, w.Code)

	require.Len(t, fake.reqs, 1)
	assert.Equal(t, "step", fake.reqs[0].Format)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParamsTooLarge(t *testing.T) {
	fake := &fakeSubmitter{}
	s, _, _ := newTestServer(t, fake)

	w := do(s, http.MethodPost, "/api/v1/parts/box/info", strings.Repeat(" ", maxParamsBytes+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, fake.reqs)
}

func TestSettings_GetAndUpdate(t *testing.T) {
	s, store, _ := newTestServer(t, &fakeSubmitter{})

	w := do(s, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unit_size":25,"unit_height":5}`, w.Body.String())

	w = do(s, http.MethodPost, "/api/v1/settings", `{"unit_size":42}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, scaling.UnitSettings{UnitSize: 42, UnitHeight: 5}, store.Current())

	w = do(s, http.MethodPost, "/api/v1/settings", `{"unit_height":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, scaling.UnitSettings{UnitSize: 42, UnitHeight: 5}, store.Current())

	w = do(s, http.MethodPost, "/api/v1/settings", `{"unit_size":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEndToEnd_InProcess(t *testing.T) {
	store, err := settings.NewStore(scaling.DefaultSettings())
	require.NoError(t, err)
	svc := generation.NewService(
		generation.InProcess{Runner: generation.NewRunner(csg.New(csg.Config{VolumeCells: 24, MeshCells: 16}))},
		store,
		nil,
	)
	s := New(svc, store, t.TempDir())

	w := do(s, http.MethodPost, "/api/v1/parts/box/info", `{"length":2,"width":3,"height":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dims := decode(t, w)["dimensions"].(map[string]any)
	assert.Positive(t, dims["x"].(float64))
	assert.Less(t, dims["x"].(float64), dims["y"].(float64))

	w = do(s, http.MethodPost, "/api/v1/parts/widget/info", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
