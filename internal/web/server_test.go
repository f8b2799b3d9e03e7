package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/txtingest/internal/core"
	"github.com/JonMunkholm/txtingest/internal/core/layouts"
	"github.com/JonMunkholm/txtingest/internal/logging"
	"github.com/JonMunkholm/txtingest/internal/pipeline"
)

type fakeRuns struct {
	mu       sync.Mutex
	running  bool
	trigger  string
	last     *pipeline.Report
	started  []string
	startErr error
}

func (f *fakeRuns) Start(_ context.Context, trigger string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return pipeline.ErrRunInProgress
	}
	f.running = true
	f.trigger = trigger
	f.started = append(f.started, trigger)
	return nil
}

func (f *fakeRuns) Running() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.trigger
}

func (f *fakeRuns) Last() *pipeline.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func newTestServer(t *testing.T, runs *fakeRuns, keys ...string) *Server {
	t.Helper()
	reg := core.NewLayoutRegistry()
	require.NoError(t, layouts.Register(reg, core.NewConversionRegistry()))
	next := time.Date(2024, 3, 1, 12, 15, 0, 0, time.UTC)
	return NewServer(Options{
		Runs:    runs,
		Layouts: reg,
		NextRun: func() time.Time { return next },
		APIKeys: keys,
		Logger:  logging.Discard(),
	})
}

func do(s *Server, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(newTestServer(t, &fakeRuns{}), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestStatus_LastRun(t *testing.T) {
	runs := &fakeRuns{last: &pipeline.Report{
		RunID:   "r-1",
		Trigger: "schedule",
		Final:   pipeline.Done,
		Status:  pipeline.StatusPartial,
		Counts:  pipeline.Counts{Listed: 3, Persisted: 2, Records: 40},
		Failures: []pipeline.FileFailure{
			{Stage: pipeline.Decoding, File: "ventas_02.txt", Code: "DEC002", Message: "expected 4 fields, got 2"},
		},
	}}
	rec := do(newTestServer(t, runs), http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Running bool      `json:"running"`
		NextRun time.Time `json:"next_run"`
		Last    struct {
			RunID    string `json:"run_id"`
			Final    string `json:"final_state"`
			Status   string `json:"status"`
			Counts   pipeline.Counts
			Failures []struct {
				Stage string `json:"stage"`
				File  string `json:"file"`
				Code  string `json:"code"`
			} `json:"failures"`
		} `json:"last_run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.False(t, body.Running)
	assert.Equal(t, 2024, body.NextRun.Year())
	assert.Equal(t, "r-1", body.Last.RunID)
	assert.Equal(t, "done", body.Last.Final)
	assert.Equal(t, "partial", body.Last.Status)
	assert.Equal(t, int64(40), body.Last.Counts.Records)
	require.Len(t, body.Last.Failures, 1)
	assert.Equal(t, "decoding", body.Last.Failures[0].Stage)
	assert.Equal(t, "DEC002", body.Last.Failures[0].Code)
}

func TestStatus_NoRunYet(t *testing.T) {
	rec := do(newTestServer(t, &fakeRuns{}), http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"last_run":null`)
}

func TestLayouts(t *testing.T) {
	rec := do(newTestServer(t, &fakeRuns{}), http.MethodGet, "/layouts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []LayoutInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, len(layouts.All()))

	ids := make([]string, len(got))
	for i, l := range got {
		ids[i] = l.ID
		assert.NotEmpty(t, l.Summary)
	}
	assert.Contains(t, ids, layouts.Sales.ID)
}

func TestTriggerRun(t *testing.T) {
	runs := &fakeRuns{}
	s := newTestServer(t, runs)

	rec := do(s, http.MethodPost, "/runs", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"http"}, runs.started)

	rec = do(s, http.MethodPost, "/runs", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "RUN003", errResp.Code)
}

func TestTriggerRun_APIKey(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusForbidden},
		{"valid key", map[string]string{"X-API-Key": "k2"}, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &fakeRuns{}
			rec := do(newTestServer(t, runs, "k1", "k2"), http.MethodPost, "/runs", tt.header)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestStatusIsReadOnlyWithoutKey(t *testing.T) {
	rec := do(newTestServer(t, &fakeRuns{}, "k1"), http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
