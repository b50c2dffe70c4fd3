package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/calder/savewatch/internal/coop"
	"github.com/calder/savewatch/internal/track"
)

// fakeSink implements MessageSink for testing.
type fakeSink struct {
	mu        sync.Mutex
	payloads  [][]byte
	connected []bool
	reject    error
}

func (f *fakeSink) OnPeerMessage(payload []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject != nil {
		return false, f.reject
	}
	f.payloads = append(f.payloads, payload)
	return true, nil
}

func (f *fakeSink) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, connected)
}

func (f *fakeSink) lastConnected() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.connected) == 0 {
		return false, false
	}
	return f.connected[len(f.connected)-1], true
}

func postJoin(t *testing.T, srv *httptest.Server, info ClientInfo, proto string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(info)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/join", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if proto != "" {
		req.Header.Set(ProtoHeader, proto)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("join request failed: %v", err)
	}
	resp.Body.Close()
	return resp
}

func TestHostJoinRegistersClient(t *testing.T) {
	h := NewHost()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	var joined []ClientInfo
	h.SetOnJoin(func(c ClientInfo) { joined = append(joined, c) })

	resp := postJoin(t, srv, ClientInfo{Addr: "127.0.0.1:9999", Name: "bee"}, ProtoVersion)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join returned %d", resp.StatusCode)
	}
	if len(h.Clients()) != 1 {
		t.Fatalf("expected 1 client, got %d", len(h.Clients()))
	}
	if len(joined) != 1 || joined[0].Name != "bee" {
		t.Errorf("onJoin not invoked for new client: %v", joined)
	}

	// Re-joining the same address is idempotent and fires onJoin only once.
	postJoin(t, srv, ClientInfo{Addr: "127.0.0.1:9999", Name: "bee"}, ProtoVersion)
	if len(h.Clients()) != 1 {
		t.Errorf("duplicate join grew the client list: %d", len(h.Clients()))
	}
	if len(joined) != 1 {
		t.Errorf("onJoin fired for a known client: %d calls", len(joined))
	}
}

func TestHostJoinRejectsWrongProtocol(t *testing.T) {
	h := NewHost()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	resp := postJoin(t, srv, ClientInfo{Addr: "127.0.0.1:9999"}, "99")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for wrong protocol version, got %d", resp.StatusCode)
	}
	if len(h.Clients()) != 0 {
		t.Error("rejected join must not register the client")
	}
}

func TestHostLeaveRemovesClient(t *testing.T) {
	h := NewHost()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	postJoin(t, srv, ClientInfo{Addr: "127.0.0.1:9999"}, ProtoVersion)

	body, _ := json.Marshal(ClientInfo{Addr: "127.0.0.1:9999"})
	resp, err := srv.Client().Post(srv.URL+"/v1/leave", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("leave request failed: %v", err)
	}
	resp.Body.Close()

	if len(h.Clients()) != 0 {
		t.Errorf("expected empty client list, got %d", len(h.Clients()))
	}
}

func TestBroadcastDeliversEnvelope(t *testing.T) {
	received := make(chan coop.Envelope, 1)
	clientSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(ProtoHeader) != ProtoVersion {
			t.Errorf("push missing protocol header")
		}
		var env coop.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("decode push: %v", err)
		}
		received <- env
		w.WriteHeader(http.StatusOK)
	}))
	defer clientSrv.Close()

	h := NewHost()
	hostSrv := httptest.NewServer(h.Handler())
	defer hostSrv.Close()
	postJoin(t, hostSrv, ClientInfo{Addr: clientSrv.URL}, ProtoVersion)

	h.Broadcast(track.Snapshot{
		Category: "all_advancements",
		Version:  "1.21",
		Data:     []byte(`{"done":5}`),
		TakenAt:  time.Now(),
	})

	select {
	case env := <-received:
		if env.Category != "all_advancements" || env.Version != "1.21" {
			t.Errorf("unexpected envelope: %+v", env)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast never reached the client")
	}
}

func TestBroadcastWithNoClientsIsNoOp(t *testing.T) {
	h := NewHost()
	// Must not panic or block with an empty client list.
	h.Broadcast(track.Snapshot{Data: []byte(`{}`)})
}

func TestClientJoinMarksConnected(t *testing.T) {
	h := NewHost()
	hostSrv := httptest.NewServer(h.Handler())
	defer hostSrv.Close()

	sink := &fakeSink{}
	c := NewClient(hostSrv.URL, "127.0.0.1:7821", "bee", sink)

	if err := c.Join(context.Background()); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if connected, ok := sink.lastConnected(); !ok || !connected {
		t.Error("Join must mark the session connected")
	}
	if len(h.Clients()) != 1 {
		t.Errorf("host did not register the client: %d", len(h.Clients()))
	}
}

func TestClientJoinUnreachableHost(t *testing.T) {
	sink := &fakeSink{}
	c := NewClient("127.0.0.1:1", "127.0.0.1:7821", "bee", sink)

	if err := c.Join(context.Background()); err == nil {
		t.Error("expected join failure for unreachable host")
	}
	if _, ok := sink.lastConnected(); ok {
		t.Error("failed join must not touch the connected state")
	}
}

func TestClientStatePushForwardsToSink(t *testing.T) {
	sink := &fakeSink{}
	c := NewClient("127.0.0.1:1", "127.0.0.1:7821", "bee", sink)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/state",
		bytes.NewReader([]byte(`{"category":"all_blocks","data":{}}`)))
	req.Header.Set(ProtoHeader, ProtoVersion)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("state push failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("push returned %d", resp.StatusCode)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.payloads) != 1 {
		t.Fatalf("expected 1 forwarded payload, got %d", len(sink.payloads))
	}
	// A valid push also revives a heartbeat-declared drop.
	if len(sink.connected) == 0 || !sink.connected[len(sink.connected)-1] {
		t.Error("valid push must mark the session live")
	}
}

func TestClientStatePushMissingHeaderRejected(t *testing.T) {
	sink := &fakeSink{}
	c := NewClient("127.0.0.1:1", "127.0.0.1:7821", "bee", sink)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/v1/state", "application/json",
		bytes.NewReader([]byte(`{"data":{}}`)))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without protocol header, got %d", resp.StatusCode)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.payloads) != 0 {
		t.Error("rejected push must not reach the sink")
	}
}

func TestHeartbeatThresholdReportsUnreachable(t *testing.T) {
	sink := &fakeSink{}
	c := NewClient("127.0.0.1:1", "127.0.0.1:7821", "bee", sink)

	var reports []string
	c.SetOnUnreachable(func(condition, message string) {
		reports = append(reports, condition)
	})

	// Below the threshold: failures accumulate silently.
	c.beat(context.Background())
	c.beat(context.Background())
	if _, ok := sink.lastConnected(); ok {
		t.Fatal("session must survive fewer failures than the threshold")
	}
	if len(reports) != 0 {
		t.Fatalf("reported unreachable below the threshold: %v", reports)
	}

	// The threshold beat ends the session and reports exactly once.
	c.beat(context.Background())
	if connected, ok := sink.lastConnected(); !ok || connected {
		t.Error("threshold beat must end the session")
	}
	if len(reports) != 1 || reports[0] != "127.0.0.1:1" {
		t.Errorf("expected one unreachable report for the host, got %v", reports)
	}

	// Failures past the threshold stay quiet.
	c.beat(context.Background())
	if len(reports) != 1 {
		t.Errorf("unreachable re-reported past the threshold: %v", reports)
	}
}

func TestBaseURLNormalization(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"127.0.0.1:7820", "http://127.0.0.1:7820"},
		{"http://127.0.0.1:7820", "http://127.0.0.1:7820"},
		{"https://example.com", "https://example.com"},
	}
	for _, c := range cases {
		if got := baseURL(c.in); got != c.want {
			t.Errorf("baseURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
