package inspect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weld-ui/weld/pkg/engine"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine, *httptest.Server) {
	t.Helper()
	s := NewServer(nil)
	e := engine.New(engine.Config{ID: "eng-inspect"})
	t.Cleanup(e.Destroy)
	detach := s.Attach(e)
	t.Cleanup(detach)

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, e, ts
}

func TestHealthz(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" || body["engines"] != float64(1) {
		t.Errorf("body = %v", body)
	}
}

func TestDiagnosticsEndpoints(t *testing.T) {
	_, e, ts := newTestServer(t)
	if err := e.LoadBundle(context.Background(), "1", nil); err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}

	resp, err := http.Get(ts.URL + "/diagnostics/eng-inspect")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var d engine.Diagnostics
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.ID != "eng-inspect" || !d.Health.Loaded {
		t.Errorf("diagnostics = %+v", d)
	}

	resp404, err := http.Get(ts.URL + "/diagnostics/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp404.Body.Close()
	if resp404.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp404.StatusCode)
	}
}

func TestWebSocketStreamsOperations(t *testing.T) {
	_, e, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	bundle := `
	__sendToHost({version: 1, batchId: 1, operations: [
		{op: "CREATE", id: 1, type: "View", props: {}}]});
	`
	if err := e.LoadBundle(context.Background(), bundle, nil); err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if frame.Type != "operation" || frame.Engine != "eng-inspect" {
		t.Errorf("frame = %+v", frame)
	}
	if frame.Batch == nil || len(frame.Batch.Operations) != 1 {
		t.Errorf("batch = %+v", frame.Batch)
	}
}
