package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/calder/savewatch/internal/logging"
)

// heartbeatInterval is how often the client checks the host is reachable.
const heartbeatInterval = 5 * time.Second

// maxHeartbeatFails is how many consecutive failed heartbeats end the
// session. A single dropped packet must not bounce the tracker back to
// local resolution.
const maxHeartbeatFails = 3

// Client joins a co-op host and receives pushed snapshots on its own HTTP
// listener. Session liveness is maintained by a heartbeat against the
// host's health endpoint; after enough consecutive failures the sink is
// told the session ended and the tracker falls back to local resolution.
type Client struct {
	hostAddr string
	selfAddr string
	name     string
	sink     MessageSink
	httpc    *http.Client

	// onUnreachable, if set, is invoked when the heartbeat declares the
	// host down, so the engine can surface the degraded session.
	onUnreachable func(condition, message string)

	mu    sync.Mutex
	fails int
	wg    sync.WaitGroup
}

// NewClient creates a Client that will register selfAddr with the host.
func NewClient(hostAddr, selfAddr, name string, sink MessageSink) *Client {
	return &Client{
		hostAddr: hostAddr,
		selfAddr: selfAddr,
		name:     name,
		sink:     sink,
		httpc:    &http.Client{Timeout: 5 * time.Second},
	}
}

// SetOnUnreachable registers a callback for heartbeat-declared session
// drops. Call before StartHeartbeat.
func (c *Client) SetOnUnreachable(fn func(condition, message string)) {
	c.onUnreachable = fn
}

// Handler returns the client's HTTP surface: the state-push endpoint the
// host delivers snapshots to.
func (c *Client) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/state", c.handleState)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (c *Client) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(ProtoHeader) != ProtoVersion {
		http.Error(w, "unsupported protocol version", http.StatusBadRequest)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	changed, err := c.sink.OnPeerMessage(payload)
	if err != nil {
		logging.Warn("rejected peer payload", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Any well-formed push proves the session is live, including after a
	// heartbeat-declared drop.
	c.markAlive()
	c.sink.SetConnected(true)
	if changed {
		logging.Debug("accepted peer state push", "bytes", len(payload))
	}
	w.WriteHeader(http.StatusOK)
}

// Join registers with the host and marks the session live. A failure is
// returned for the caller to record; the engine treats it as
// peer-unreachable, not a crash.
func (c *Client) Join(ctx context.Context) error {
	body, err := json.Marshal(ClientInfo{Addr: c.selfAddr, Name: c.name})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL(c.hostAddr)+"/v1/join", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set(ProtoHeader, ProtoVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("join host %s: %w", c.hostAddr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("join host %s: status %d", c.hostAddr, resp.StatusCode)
	}

	c.markAlive()
	c.sink.SetConnected(true)
	logging.Info("joined co-op host", "host", c.hostAddr)
	return nil
}

// Leave deregisters from the host and ends the session.
func (c *Client) Leave(ctx context.Context) {
	body, _ := json.Marshal(ClientInfo{Addr: c.selfAddr})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL(c.hostAddr)+"/v1/leave", bytes.NewReader(body))
	if err == nil {
		if resp, err := c.httpc.Do(req); err == nil {
			resp.Body.Close()
		}
	}
	c.sink.SetConnected(false)
}

// StartHeartbeat begins the liveness loop. Stop by cancelling the context;
// Wait blocks until the loop exits.
func (c *Client) StartHeartbeat(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.beat(ctx)
			}
		}
	}()
}

// Wait blocks until the heartbeat loop exits.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) beat(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		baseURL(c.hostAddr)+"/health", nil)
	if err != nil {
		return
	}
	resp, err := c.httpc.Do(req)
	if err == nil {
		resp.Body.Close()
	}
	if err != nil || resp.StatusCode != http.StatusOK {
		c.mu.Lock()
		c.fails++
		fails := c.fails
		c.mu.Unlock()
		logging.Warn("host heartbeat failed", "host", c.hostAddr, "attempt", fails)
		if fails == maxHeartbeatFails {
			c.sink.SetConnected(false)
			if c.onUnreachable != nil {
				c.onUnreachable(c.hostAddr, fmt.Sprintf("co-op host %s unreachable", c.hostAddr))
			}
		}
		return
	}
	c.markAlive()
}

func (c *Client) markAlive() {
	c.mu.Lock()
	c.fails = 0
	c.mu.Unlock()
}
