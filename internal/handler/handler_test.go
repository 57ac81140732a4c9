package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viral-clipper/internal/appcore"
	"viral-clipper/internal/dto"
	"viral-clipper/internal/service"
	"viral-clipper/internal/storage"
	"viral-clipper/internal/taskrunner"
	"viral-clipper/internal/types"
	apperrors "viral-clipper/pkg/errors"
)

const testURL = "https://www.youtube.com/watch?v=handler"

func init() {
	gin.SetMode(gin.TestMode)
}

type analyzerFunc func(ctx context.Context, sourceRef string, cfg dto.AnalyzeConfig, progress service.ProgressFunc) (*types.RankedResult, error)

func (f analyzerFunc) Analyze(ctx context.Context, sourceRef string, cfg dto.AnalyzeConfig, progress service.ProgressFunc) (*types.RankedResult, error) {
	return f(ctx, sourceRef, cfg, progress)
}

func oneClip() *types.RankedResult {
	return &types.RankedResult{
		Source: types.SourceMeta{Title: "Handler talk", URL: testURL, Duration: 600},
		Clips: []types.RankedClip{{
			ValidatedClip: types.ValidatedClip{
				CandidateMoment: types.CandidateMoment{Start: 10, End: 50, Hook: "the hook", Score: 0.9, Rationale: "tension"},
				Duration:        40,
			},
			Rank: 1,
		}},
	}
}

type apiResponse struct {
	Error  int32           `json:"error"`
	Msg    string          `json:"msg"`
	Kind   string          `json:"kind"`
	Stage  string          `json:"stage"`
	Detail string          `json:"detail"`
	Data   json.RawMessage `json:"data"`
}

// useTestStorage points the database and result files at temp dirs.
func useTestStorage(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())

	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "handler.db"))
	require.NoError(t, err)
	original := storage.DB
	storage.DB = db
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		storage.DB = original
	})
}

func newTestRunner(t *testing.T, analyzer service.Analyzer) *taskrunner.Runner {
	t.Helper()
	runner := taskrunner.New(analyzer, appcore.NewEventHub(16), taskrunner.Config{Concurrency: 1})
	t.Cleanup(runner.Close)
	return runner
}

func newEngine(h Handler) *gin.Engine {
	r := gin.New()
	api := r.Group("/api")
	api.GET("/health", h.Health)
	api.POST("/clipper/analyze", h.Analyze)
	api.POST("/clipper/jobs", h.SubmitJob)
	api.GET("/clipper/jobs/:jobId", h.GetJob)
	api.DELETE("/clipper/jobs/:jobId", h.DeleteJob)
	api.GET("/clipper/jobs/:jobId/events", h.JobEvents)
	api.GET("/clipper/jobs/:jobId/result", h.DownloadResult)
	api.GET("/clipper/history", h.GetHistory)
	api.GET("/cookie/status", h.GetCookieStatus)
	api.POST("/cookie/upload", h.UploadCookie)
	return r
}

func call(t *testing.T, engine *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var resp apiResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func TestAnalyzeReturnsRankedClips(t *testing.T) {
	var got dto.AnalyzeConfig
	analyzer := analyzerFunc(func(_ context.Context, sourceRef string, cfg dto.AnalyzeConfig, _ service.ProgressFunc) (*types.RankedResult, error) {
		assert.Equal(t, testURL, sourceRef)
		got = cfg
		return oneClip(), nil
	})
	engine := newEngine(NewHandler(analyzer, nil, nil, nil))

	rec, resp := call(t, engine, http.MethodPost, "/api/clipper/analyze", map[string]any{"url": testURL, "max_clips": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, resp.Error, resp.Msg)

	assert.Equal(t, 2, got.MaxClips)
	assert.Equal(t, "base", got.WhisperModel)
	assert.Equal(t, 25.0, got.MinDuration)
	assert.Equal(t, 65.0, got.MaxDuration)

	var result dto.AnalyzeResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Len(t, result.TopClips, 1)
	assert.Equal(t, "00:00:10 - 00:00:50", result.TopClips[0].Timestamp)
	assert.Equal(t, "Handler talk", result.VideoTitle)
	assert.Nil(t, result.FullTranscript)
}

func TestAnalyzeReportsPipelineErrors(t *testing.T) {
	analyzer := analyzerFunc(func(context.Context, string, dto.AnalyzeConfig, service.ProgressFunc) (*types.RankedResult, error) {
		return nil, apperrors.WithStage(apperrors.New(apperrors.CodeNoValidClips, "every candidate was rejected"), "validation")
	})
	engine := newEngine(NewHandler(analyzer, nil, nil, nil))

	_, resp := call(t, engine, http.MethodPost, "/api/clipper/analyze", map[string]any{"url": testURL})
	assert.Equal(t, int32(apperrors.CodeNoValidClips), resp.Error)
	assert.Equal(t, "NoValidClipsError", resp.Kind)
	assert.Equal(t, "validation", resp.Stage)
}

func TestAnalyzeRejectsInvalidRequests(t *testing.T) {
	called := false
	analyzer := analyzerFunc(func(context.Context, string, dto.AnalyzeConfig, service.ProgressFunc) (*types.RankedResult, error) {
		called = true
		return oneClip(), nil
	})
	engine := newEngine(NewHandler(analyzer, nil, nil, nil))

	cases := map[string]any{
		"missing url":        map[string]any{"max_clips": 2},
		"bad model":          map[string]any{"url": testURL, "whisper_model": "huge"},
		"inverted durations": map[string]any{"url": testURL, "min_duration_s": 70, "max_duration_s": 30},
		"malformed json":     `{"url":`,
		"server path":        map[string]any{"url": "/etc/hostname", "include_transcript": true},
		"local ref":          map[string]any{"url": "local:/root/.ssh/id_rsa"},
		"file url":           map[string]any{"url": "file:///etc/passwd"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, resp := call(t, engine, http.MethodPost, "/api/clipper/analyze", body)
			assert.Equal(t, int32(apperrors.CodeInvalidParams), resp.Error)
			assert.Equal(t, "InvalidParams", resp.Kind)
		})
	}
	assert.False(t, called)
}

func TestSubmitJobLifecycle(t *testing.T) {
	useTestStorage(t)
	runner := newTestRunner(t, analyzerFunc(func(_ context.Context, _ string, _ dto.AnalyzeConfig, progress service.ProgressFunc) (*types.RankedResult, error) {
		progress(appcore.JobStageAnalyzing, "asking the model")
		return oneClip(), nil
	}))
	h := NewHandler(nil, runner, nil, nil)
	engine := newEngine(h)

	_, resp := call(t, engine, http.MethodPost, "/api/clipper/jobs", map[string]any{"url": testURL})
	require.Zero(t, resp.Error, resp.Msg)
	var submitted dto.SubmitJobResData
	require.NoError(t, json.Unmarshal(resp.Data, &submitted))
	require.NotEmpty(t, submitted.JobId)

	events, unsubscribe := h.Hub.Subscribe(submitted.JobId)
	defer unsubscribe()
	waitClosed(t, events)

	_, resp = call(t, engine, http.MethodGet, "/api/clipper/jobs/"+submitted.JobId, nil)
	require.Zero(t, resp.Error, resp.Msg)
	var status dto.JobStatusData
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, "succeeded", status.Status)
	require.NotNil(t, status.Result)
	assert.Equal(t, 1, status.Result.ViralClipsFound)

	rec, _ := call(t, engine, http.MethodGet, "/api/clipper/jobs/"+submitted.JobId+"/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"top_clips"`)

	_, resp = call(t, engine, http.MethodGet, "/api/clipper/history?limit=5", nil)
	require.Zero(t, resp.Error, resp.Msg)
	var history dto.HistoryResData
	require.NoError(t, json.Unmarshal(resp.Data, &history))
	assert.Equal(t, int64(1), history.Total)
	require.Len(t, history.Items, 1)
	assert.Equal(t, "Handler talk", history.Items[0].VideoTitle)
	assert.Equal(t, 1, history.Items[0].ClipsFound)

	_, resp = call(t, engine, http.MethodDelete, "/api/clipper/jobs/"+submitted.JobId, nil)
	require.Zero(t, resp.Error, resp.Msg)
	_, err := os.Stat(filepath.Join("output", submitted.JobId+".json"))
	assert.True(t, os.IsNotExist(err))

	_, resp = call(t, engine, http.MethodGet, "/api/clipper/jobs/"+submitted.JobId, nil)
	assert.Equal(t, int32(apperrors.CodeNotFound), resp.Error)
}

func TestDeleteCancelsRunningJob(t *testing.T) {
	useTestStorage(t)
	started := make(chan struct{})
	runner := newTestRunner(t, analyzerFunc(func(ctx context.Context, _ string, _ dto.AnalyzeConfig, _ service.ProgressFunc) (*types.RankedResult, error) {
		close(started)
		<-ctx.Done()
		return nil, apperrors.Wrap(apperrors.CodeCanceled, "analysis canceled", ctx.Err())
	}))
	h := NewHandler(nil, runner, nil, nil)
	engine := newEngine(h)

	_, resp := call(t, engine, http.MethodPost, "/api/clipper/jobs", map[string]any{"url": testURL})
	require.Zero(t, resp.Error, resp.Msg)
	var submitted dto.SubmitJobResData
	require.NoError(t, json.Unmarshal(resp.Data, &submitted))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	_, resp = call(t, engine, http.MethodDelete, "/api/clipper/jobs/"+submitted.JobId, nil)
	require.Zero(t, resp.Error, resp.Msg)
	assert.Contains(t, string(resp.Data), `"canceled":true`)

	events, unsubscribe := h.Hub.Subscribe(submitted.JobId)
	defer unsubscribe()
	waitClosed(t, events)

	job, err := storage.GetJob(submitted.JobId)
	require.NoError(t, err)
	assert.Equal(t, "canceled", job.Status)
}

func TestSubmitJobWithoutRunner(t *testing.T) {
	engine := newEngine(NewHandler(nil, nil, nil, nil))
	_, resp := call(t, engine, http.MethodPost, "/api/clipper/jobs", map[string]any{"url": testURL})
	assert.Equal(t, int32(apperrors.CodeUnknown), resp.Error)
}

func TestSubmitJobRejectsBadCallback(t *testing.T) {
	engine := newEngine(NewHandler(nil, nil, nil, nil))
	_, resp := call(t, engine, http.MethodPost, "/api/clipper/jobs", map[string]any{"url": testURL, "callback_url": "not a url"})
	assert.Equal(t, int32(apperrors.CodeInvalidParams), resp.Error)
}

func TestSubmitJobRejectsLocalSources(t *testing.T) {
	useTestStorage(t)
	called := false
	runner := newTestRunner(t, analyzerFunc(func(context.Context, string, dto.AnalyzeConfig, service.ProgressFunc) (*types.RankedResult, error) {
		called = true
		return oneClip(), nil
	}))
	engine := newEngine(NewHandler(nil, runner, nil, nil))

	for _, ref := range []string{"/etc/hostname", "local:/etc/hostname", "file:///etc/hostname"} {
		_, resp := call(t, engine, http.MethodPost, "/api/clipper/jobs", map[string]any{"url": ref})
		assert.Equal(t, int32(apperrors.CodeInvalidParams), resp.Error, ref)
		assert.Contains(t, resp.Detail, "url must be an http or https URL", ref)
	}
	assert.Zero(t, runner.Pending())
	assert.False(t, called)
}

func TestDownloadResultMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	engine := newEngine(NewHandler(nil, nil, nil, nil))

	rec, resp := call(t, engine, http.MethodGet, "/api/clipper/jobs/nope/result", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, int32(apperrors.CodeFileNotFound), resp.Error)
}

func TestHealth(t *testing.T) {
	useTestStorage(t)
	runner := newTestRunner(t, analyzerFunc(func(context.Context, string, dto.AnalyzeConfig, service.ProgressFunc) (*types.RankedResult, error) {
		return oneClip(), nil
	}))
	engine := newEngine(NewHandler(nil, runner, nil, nil))

	_, resp := call(t, engine, http.MethodGet, "/api/health", nil)
	require.Zero(t, resp.Error)
	var data HealthData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "ok", data.Status)
	assert.Equal(t, "runner", data.JobMode)
	assert.True(t, data.Database)
}

func wsURL(server *httptest.Server, jobID string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/api/clipper/jobs/" + jobID + "/events"
}

func readStages(t *testing.T, conn *websocket.Conn) ([]string, error) {
	t.Helper()
	var stages []string
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg JobEventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return stages, err
		}
		stages = append(stages, msg.Stage)
	}
}

func TestJobEventsStreamsUntilDone(t *testing.T) {
	useTestStorage(t)
	release := make(chan struct{})
	runner := newTestRunner(t, analyzerFunc(func(_ context.Context, _ string, _ dto.AnalyzeConfig, progress service.ProgressFunc) (*types.RankedResult, error) {
		<-release
		progress(appcore.JobStageAnalyzing, "asking the model")
		return oneClip(), nil
	}))
	engine := newEngine(NewHandler(nil, runner, nil, nil))
	server := httptest.NewServer(engine)
	defer server.Close()

	handle, err := runner.Submit(context.Background(), appcore.JobRequest{SourceRef: testURL})
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, handle.ID()), nil)
	require.NoError(t, err)
	defer conn.Close()

	close(release)
	stages, err := readStages(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
	require.NotEmpty(t, stages)
	assert.Equal(t, "queued", stages[0])
	assert.Equal(t, "succeeded", stages[len(stages)-1])
}

func TestJobEventsForFinishedJob(t *testing.T) {
	useTestStorage(t)
	require.NoError(t, storage.SaveJob(&storage.AnalysisJob{
		JobId:     "old-job",
		SourceUrl: testURL,
		Status:    "failed",
		ErrorKind: "AcquisitionError",
		ErrorMsg:  "video unavailable",
	}))
	engine := newEngine(NewHandler(nil, nil, nil, nil))
	server := httptest.NewServer(engine)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "old-job"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg JobEventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "failed", msg.Stage)
	assert.Equal(t, "AcquisitionError", msg.ErrorKind)
	assert.Equal(t, "video unavailable", msg.Error)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
}

func TestJobEventsUnknownJob(t *testing.T) {
	useTestStorage(t)
	engine := newEngine(NewHandler(nil, nil, nil, nil))

	_, resp := call(t, engine, http.MethodGet, "/api/clipper/jobs/missing/events", nil)
	assert.Equal(t, int32(apperrors.CodeNotFound), resp.Error)
}

func waitClosed(t *testing.T, events <-chan appcore.JobEvent) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("job did not reach a terminal stage")
		}
	}
}
