package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fardannozami/parking-reporter/internal/domain"
	"github.com/fardannozami/parking-reporter/internal/infra/realtime"
)

// =============================================================================
// WEBSOCKET HANDLER / DIALER TESTS
// =============================================================================

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestRouter_Health(t *testing.T) {
	srv := httptest.NewServer(realtime.NewRouter(http.NotFoundHandler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestHandler_StreamsToDialer(t *testing.T) {
	hub := realtime.NewHub(8, nil)
	srv := httptest.NewServer(realtime.NewRouter(realtime.NewHandler(hub, nil)))
	defer srv.Close()

	dialer := realtime.NewDialer(wsURL(srv, "/realtime/reports"), nil)
	sub, err := dialer.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	// The server registers its hub subscription during the upgrade.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(domain.ChangeEvent{Type: domain.ChangeInsert, ReportID: "r1", At: time.Now()})
	hub.Publish(domain.ChangeEvent{Type: domain.ChangeDelete, ReportID: "r0"})

	if evt := recv(t, sub); evt.Type != domain.ChangeInsert || evt.ReportID != "r1" {
		t.Errorf("Unexpected first event %+v", evt)
	}
	if evt := recv(t, sub); evt.Type != domain.ChangeDelete || evt.ReportID != "r0" {
		t.Errorf("Unexpected second event %+v", evt)
	}
}

func TestHandler_ReleasesSubscriptionOnDisconnect(t *testing.T) {
	hub := realtime.NewHub(8, nil)
	srv := httptest.NewServer(realtime.NewHandler(hub, nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Subscribers() != 0 {
		t.Errorf("Expected subscription released after disconnect, %d left", hub.Subscribers())
	}
}

// flakyServer accepts connections, sends the queued frames on each and then
// drops the connection.
type flakyServer struct {
	mu     sync.Mutex
	frames [][]string
	conns  int
}

func (f *flakyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	var frames []string
	if f.conns < len(f.frames) {
		frames = f.frames[f.conns]
	}
	f.conns++
	last := f.conns > len(f.frames)
	f.mu.Unlock()

	for _, fr := range frames {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(fr))
	}
	if last {
		// Keep the final connection open until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
	conn.Close()
}

func TestDialer_ResyncAfterReconnect(t *testing.T) {
	flaky := &flakyServer{frames: [][]string{
		{
			`{"event":"INSERT","row":{"id":"a"}}`,
			`not json`,
			`{"event":"BOGUS","row":{"id":"x"}}`,
			`{"event":"DELETE","old":{"id":"b"}}`,
		},
	}}
	srv := httptest.NewServer(flaky)
	defer srv.Close()

	sub, err := realtime.NewDialer(wsURL(srv, "/"), nil).Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	want := []domain.ChangeEvent{
		{Type: domain.ChangeInsert, ReportID: "a"},
		{Type: domain.ChangeDelete, ReportID: "b"},
		{Type: domain.ChangeResync},
	}
	for i, w := range want {
		got := recv(t, sub)
		if got.Type != w.Type || got.ReportID != w.ReportID {
			t.Errorf("Event %d: expected %s/%s, got %s/%s", i, w.Type, w.ReportID, got.Type, got.ReportID)
		}
	}

	if err := sub.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("Events should be closed after Close")
	}
}

func TestDialer_SubscribeFailsWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := realtime.NewDialer(wsURL(srv, "/"), nil).Subscribe(ctx); err == nil {
		t.Error("Expected dial error")
	}
}
