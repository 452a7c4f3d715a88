package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"alerthub/internal/fanout"
	"alerthub/internal/ingest"
	"alerthub/internal/insight"
	"alerthub/internal/models"
	"alerthub/internal/store"
)

// fakeStore implements store.AlertStore and store.Watcher in memory.
type fakeStore struct {
	mu      sync.Mutex
	alerts  []models.Alert
	failing bool
	changes chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{changes: make(chan struct{}, 1)}
}

func (f *fakeStore) Append(ctx context.Context, a *models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return store.ErrUnavailable
	}
	f.alerts = append(f.alerts, *a)
	select {
	case f.changes <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeStore) List(ctx context.Context) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, store.ErrUnavailable
	}
	return append([]models.Alert(nil), f.alerts...), nil
}

func (f *fakeStore) Changes() <-chan struct{} { return f.changes }

func (f *fakeStore) setFailing(failing bool) {
	f.mu.Lock()
	f.failing = failing
	f.mu.Unlock()
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

type noopNotifier struct{}

func (noopNotifier) MaybeNotify(ctx context.Context, alert models.Alert) {}

type stubGenerator struct {
	text string
	err  error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return s.text, s.err
}

type testEnv struct {
	store      *fakeStore
	router     *gin.Engine
	subscriber *fanout.Subscriber
}

func setupEnv(t *testing.T, gen insight.Generator) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := newFakeStore()

	coordinator := ingest.NewCoordinator(st, noopNotifier{}, 1, 8)
	ctx, cancel := context.WithCancel(context.Background())
	coordinator.Start(ctx)

	subscriber := fanout.NewSubscriber(st, 50*time.Millisecond)
	subscriber.Start(ctx)

	t.Cleanup(func() {
		cancel()
		subscriber.Wait()
		subscriber.Close()
		coordinator.Stop()
	})

	var requestor *insight.Requestor
	if gen != nil {
		requestor = insight.NewRequestor(gen)
	}

	router := gin.New()
	handler := NewHandler(coordinator, st, subscriber, requestor)
	handler.RegisterRoutes(router)

	return &testEnv{store: st, router: router, subscriber: subscriber}
}

func submitBody() []byte {
	body, _ := json.Marshal(models.AlertInput{
		Title:       "Break-in attempt",
		Description: "Someone tried the back door",
		Location:    "12 Elm St",
		Type:        "Physical",
		Severity:    "Critical",
		ReporterID:  "u1",
	})
	return body
}

func TestSubmitAlert_Success(t *testing.T) {
	env := setupEnv(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/alerts", bytes.NewReader(submitBody()))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["message"] == "" || resp["id"] == "" {
		t.Errorf("expected message and id in response, got %s", w.Body.String())
	}
	if env.store.count() != 1 {
		t.Errorf("expected 1 stored alert, got %d", env.store.count())
	}
}

func TestSubmitAlert_ValidationFailure(t *testing.T) {
	env := setupEnv(t, nil)

	body, _ := json.Marshal(map[string]string{
		"title": "no description",
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/alerts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	if env.store.count() != 0 {
		t.Errorf("expected zero store writes, got %d", env.store.count())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] == "" {
		t.Errorf("expected error field in response: %s", w.Body.String())
	}
}

func TestSubmitAlert_StoreUnavailable(t *testing.T) {
	env := setupEnv(t, nil)
	env.store.setFailing(true)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/alerts", bytes.NewReader(submitBody()))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestListAlerts_ReturnsISOTimestamps(t *testing.T) {
	env := setupEnv(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/alerts", bytes.NewReader(submitBody()))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/alerts", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var alerts []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}

	ts, ok := alerts[0]["timestamp"].(string)
	if !ok {
		t.Fatalf("expected string timestamp, got %T", alerts[0]["timestamp"])
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q is not RFC 3339: %v", ts, err)
	}
}

func TestListAlerts_EmptyFeedIsArray(t *testing.T) {
	env := setupEnv(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/alerts", nil)
	env.router.ServeHTTP(w, req)

	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestRequestInsight_Success(t *testing.T) {
	env := setupEnv(t, &stubGenerator{text: "Summary: fine\nInsight: add cameras"})

	body, _ := json.Marshal(map[string]string{
		"alertId":     "a1",
		"title":       "Break-in attempt",
		"description": "Someone tried the back door",
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/insight", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.Contains(resp["insight"], "add cameras") {
		t.Errorf("expected insight text in response: %s", w.Body.String())
	}
}

func TestRequestInsight_MissingFields(t *testing.T) {
	env := setupEnv(t, &stubGenerator{text: "unused"})

	body, _ := json.Marshal(map[string]string{"title": "only a title"})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/insight", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestRequestInsight_UpstreamFailure(t *testing.T) {
	env := setupEnv(t, &stubGenerator{err: fmt.Errorf("%w: shape", insight.ErrMalformedResponse)})

	body, _ := json.Marshal(map[string]string{
		"title":       "t",
		"description": "d",
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/insight", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
}

func TestRequestInsight_Unconfigured(t *testing.T) {
	env := setupEnv(t, nil)

	body, _ := json.Marshal(map[string]string{
		"title":       "t",
		"description": "d",
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/insight", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	env := setupEnv(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func dialLive(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/alerts/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, wantType string) liveFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)
	for {
		var frame liveFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read failed waiting for %q frame: %v", wantType, err)
		}
		if frame.Type == wantType {
			return frame
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %q frame", wantType)
		}
	}
}

func TestLiveAlerts_PushesSnapshotsOnSubmit(t *testing.T) {
	env := setupEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialLive(t, srv)

	resp, err := http.Post(srv.URL+"/api/alerts", "application/json", bytes.NewReader(submitBody()))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	resp.Body.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for non-empty snapshot")
		default:
		}
		frame := readFrame(t, conn, "snapshot")
		if len(frame.Alerts) == 0 {
			continue
		}
		if frame.Alerts[0].Title != "Break-in attempt" {
			t.Errorf("unexpected alert in snapshot: %+v", frame.Alerts[0])
		}
		return
	}
}

func TestLiveAlerts_InsightOverSocket(t *testing.T) {
	env := setupEnv(t, &stubGenerator{text: "Summary: quiet street"})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialLive(t, srv)

	err := conn.WriteJSON(liveAction{
		Action:      "insight",
		AlertID:     "a1",
		Title:       "Break-in attempt",
		Description: "Someone tried the back door",
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The session first acks the request, then pushes the settled state.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for resolved insight")
		default:
		}
		frame := readFrame(t, conn, "insight")
		if frame.AlertID != "a1" {
			t.Fatalf("unexpected alert id %q", frame.AlertID)
		}
		if frame.State == insight.StateResolved.String() {
			if !strings.Contains(frame.Insight, "quiet street") {
				t.Errorf("expected insight text, got %+v", frame)
			}
			return
		}
	}
}

func TestLiveAlerts_SessionTeardownReleasesSubscription(t *testing.T) {
	env := setupEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialLive(t, srv)

	// Wait for the session to register.
	waitFor(t, func() bool { return env.subscriber.SubscriptionCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return env.subscriber.SubscriptionCount() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
