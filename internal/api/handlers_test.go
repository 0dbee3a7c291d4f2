package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/stream"
	"github.com/ocrdesk/ocrdesk/internal/testutil"
	"github.com/ocrdesk/ocrdesk/internal/upload"
)

type fakeGPU struct{ status models.GPUStatus }

func (f fakeGPU) Probe(context.Context) models.GPUStatus { return f.status }

type testServer struct {
	e      *echo.Echo
	store  *testutil.MockStorage
	jobs   *upload.Manager
	engine *testutil.ScriptedEngine
}

func newTestServer(t *testing.T, eng *testutil.ScriptedEngine) *testServer {
	t.Helper()
	var jobs *upload.Manager
	if eng != nil {
		jobs = upload.NewManager(eng, 2, zerolog.Nop())
	} else {
		jobs = upload.NewManager(nil, 2, zerolog.Nop())
	}
	store := testutil.NewMockStorage()

	e := echo.New()
	SetupMiddleware(e)
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Store:   store,
		Jobs:    jobs,
		GPU:     fakeGPU{status: models.GPUStatus{Available: true, DeviceCount: 1, Info: []models.GPUInfo{{Name: "T4"}}}},
		Version: "test",
		Logger:  zerolog.Nop(),
	}))
	return &testServer{e: e, store: store, jobs: jobs, engine: eng}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func ocrRequest(t *testing.T, filename, typ string, data []byte) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		part.Write(data)
	}
	if typ != "" {
		require.NoError(t, w.WriteField("type", typ))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/ocr", body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func TestOCR_StreamsTable(t *testing.T) {
	s := newTestServer(t, testutil.NewScriptedEngine(
		[]string{"<table>", "<tr><td>1</td></tr>", "</table>"},
		[]string{"line\n"},
	))

	rec := s.do(ocrRequest(t, "receipt.png", "table", []byte("png")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "receipt.png", rec.Header().Get("X-Filename"))
	assert.Equal(t, echo.MIMETextHTMLCharsetUTF8, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "<table><tr><td>1</td></tr></table>", rec.Body.String())
	assert.True(t, rec.Flushed)

	reqs := s.engine.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, models.SessionTypeTable, reqs[0].Mode)
	assert.Equal(t, []byte("png"), reqs[0].Image)
}

func TestOCR_DefaultsToTable(t *testing.T) {
	s := newTestServer(t, testutil.NewScriptedEngine([]string{"<table></table>"}, []string{"text"}))
	rec := s.do(ocrRequest(t, "a.png", "", []byte("x")))
	assert.Equal(t, "<table></table>", rec.Body.String())
}

func TestOCR_TextMode(t *testing.T) {
	s := newTestServer(t, testutil.NewScriptedEngine(nil, []string{"hello\n", "world\n"}))
	rec := s.do(ocrRequest(t, "a.png", "text", []byte("x")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello\nworld\n", rec.Body.String())
}

func TestOCR_RequestErrors(t *testing.T) {
	s := newTestServer(t, testutil.NewScriptedEngine(nil, nil))

	rec := s.do(ocrRequest(t, "a.png", "poem", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(ocrRequest(t, "", "table", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file is required", detail(t, rec))

	rec = s.do(ocrRequest(t, "a.png", "table", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOCR_NoEngine(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(ocrRequest(t, "a.png", "table", []byte("x")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Model not loaded. Check server logs.", detail(t, rec))

	rec = s.do(httptest.NewRequest(http.MethodPost, "/cancel", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"no model"}`, rec.Body.String())
}

func TestOCR_FailureBeforeStreaming(t *testing.T) {
	eng := testutil.NewScriptedEngine(nil, nil)
	eng.Err = errors.New("out of memory")
	s := newTestServer(t, eng)

	rec := s.do(ocrRequest(t, "a.png", "table", []byte("x")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Processing failed: out of memory", detail(t, rec))
}

func TestOCR_FailureAfterStreaming(t *testing.T) {
	eng := testutil.NewScriptedEngine([]string{"<table>"}, nil)
	eng.Err = errors.New("decoder -- died")
	s := newTestServer(t, eng)

	rec := s.do(ocrRequest(t, "a.png", "table", []byte("x")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<table>\n<!-- Error: decoder - - died -->", rec.Body.String())
}

func TestOCR_CancelWritesSentinel(t *testing.T) {
	eng := testutil.NewScriptedEngine([]string{"<table>", "<tr>"}, nil)
	eng.Hold = make(chan struct{})
	eng.HoldAfter = 1
	s := newTestServer(t, eng)

	req := ocrRequest(t, "a.png", "table", []byte("x"))
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- s.do(req) }()
	<-eng.Reached

	cancelRec := s.do(httptest.NewRequest(http.MethodPost, "/cancel", nil))
	assert.Equal(t, http.StatusOK, cancelRec.Code)
	assert.Contains(t, cancelRec.Body.String(), `"status":"cancelled"`)

	rec := <-done
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<table>"+stream.Sentinel, rec.Body.String())
}

func TestSave_CreatesThenUpdates(t *testing.T) {
	s := newTestServer(t, nil)

	save := func(body string) (*httptest.ResponseRecorder, models.SaveResponse) {
		req := httptest.NewRequest(http.MethodPost, "/save", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := s.do(req)
		var out models.SaveResponse
		json.Unmarshal(rec.Body.Bytes(), &out)
		return rec, out
	}

	rec, first := save(`{"name":"Invoices","content":"<div></div>","id":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", first.Status)
	require.NotEmpty(t, first.ID)

	_, second := save(`{"name":"Invoices v2","content":"<div>2</div>","id":"` + first.ID + `"}`)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, s.store.Len())

	got, err := s.store.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Invoices v2", got.Name)
	_, err = time.Parse(models.TimestampLayout, got.Timestamp)
	assert.NoError(t, err)

	_, kept := save(`{"content":"x","id":"vanished-id"}`)
	assert.Equal(t, "vanished-id", kept.ID)
	rec2, err := s.store.Get(context.Background(), "vanished-id")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSessionName, rec2.Name)

	rec, _ = save(`{"content":"x","id":"../../etc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory(t *testing.T) {
	s := newTestServer(t, nil)
	s.store.Put(models.SessionRecord{ID: "old", Name: "Old", Content: "o", Timestamp: "2024-01-01 09:00:00"})
	s.store.Put(models.SessionRecord{ID: "new", Name: "New", Content: "n", Timestamp: "2024-05-01 09:00:00"})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []models.SessionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "new", recs[0].ID)

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.Header.Set(echo.HeaderAccept, "application/msgpack")
	rec = s.do(req)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))
	var packed []models.SessionRecord
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	assert.Equal(t, recs, packed)
}

func TestHistory_EmptyIsArray(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer(t, nil)
	s.store.Put(models.SessionRecord{ID: "abc", Name: "A", Timestamp: "2024-01-01 00:00:00"})

	rec := s.do(httptest.NewRequest(http.MethodDelete, "/session/abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, s.store.Len())

	rec = s.do(httptest.NewRequest(http.MethodDelete, "/session/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Session not found", detail(t, rec))
}

func TestHealthAndGPU(t *testing.T) {
	s := newTestServer(t, testutil.NewScriptedEngine(nil, nil))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"engine":"scripted"`)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/gpu", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"available":true,"device_count":1,"info":[{"name":"T4","utilization":"","total_memory":"","reserved_memory":"","allocated_memory":""}]}`, rec.Body.String())
}

func TestErrorHandler_EchoErrors(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"HTTP_ERROR"`)
}

func TestJobFeed(t *testing.T) {
	s := newTestServer(t, testutil.NewScriptedEngine([]string{"<table></table>"}, nil))
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/jobs", nil)
	require.NoError(t, err)
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, MsgTypeConnected, msg.Type)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing}))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, MsgTypePong, msg.Type)

	rec := s.do(ocrRequest(t, "feed.png", "table", []byte("x")))
	require.Equal(t, http.StatusOK, rec.Code)

	var last upload.Status
	for last != upload.StatusComplete {
		var ev WSMessage
		require.NoError(t, ws.ReadJSON(&ev))
		require.Equal(t, MsgTypeJob, ev.Type)
		require.NotNil(t, ev.Job)
		assert.Equal(t, "feed.png", ev.Job.FileName)
		last = ev.Job.Status
	}
}
