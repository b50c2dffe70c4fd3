package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/calder/savewatch/internal/coop"
	"github.com/calder/savewatch/internal/logging"
	"github.com/calder/savewatch/internal/track"
)

// pushTimeout bounds each individual state push to a client.
const pushTimeout = 10 * time.Second

// maxConcurrentPushes limits parallel pushes during one broadcast.
const maxConcurrentPushes = 4

// ClientInfo describes a joined co-op client.
type ClientInfo struct {
	Addr      string    `json:"addr"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	JoinedAt  time.Time `json:"-"`
}

// Host accepts client registrations and forwards snapshots to every joined
// client after each successful local read. It implements track.Broadcaster.
type Host struct {
	httpc   *http.Client
	limiter *rate.Limiter

	mu      sync.Mutex
	clients map[string]ClientInfo

	// onJoin, if set, is invoked for each newly joined client (e.g. to
	// schedule an avatar download).
	onJoin func(ClientInfo)
}

// NewHost creates a Host. Broadcasts are rate limited so a burst of save
// writes cannot flood clients.
func NewHost() *Host {
	return &Host{
		httpc:   &http.Client{Timeout: pushTimeout},
		clients: make(map[string]ClientInfo),
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
	}
}

// SetOnJoin registers a callback for new clients.
func (h *Host) SetOnJoin(fn func(ClientInfo)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onJoin = fn
}

// Handler returns the host's HTTP surface: client join/leave and a health
// endpoint for client heartbeats.
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/join", h.handleJoin)
	mux.HandleFunc("POST /v1/leave", h.handleLeave)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (h *Host) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(ProtoHeader) != ProtoVersion {
		http.Error(w, "unsupported protocol version", http.StatusBadRequest)
		return
	}
	var info ClientInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil || info.Addr == "" {
		http.Error(w, "bad join request", http.StatusBadRequest)
		return
	}
	info.JoinedAt = time.Now()

	h.mu.Lock()
	_, known := h.clients[info.Addr]
	h.clients[info.Addr] = info
	onJoin := h.onJoin
	h.mu.Unlock()

	if !known {
		logging.Info("co-op client joined", "addr", info.Addr, "name", info.Name)
		if onJoin != nil {
			onJoin(info)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Host) handleLeave(w http.ResponseWriter, r *http.Request) {
	var info ClientInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil || info.Addr == "" {
		http.Error(w, "bad leave request", http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	delete(h.clients, info.Addr)
	h.mu.Unlock()
	logging.Info("co-op client left", "addr", info.Addr)
	w.WriteHeader(http.StatusOK)
}

// Clients returns the currently joined clients.
func (h *Host) Clients() []ClientInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ClientInfo, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Broadcast forwards a snapshot to every joined client. Fire-and-forget:
// it returns immediately and failures are logged, never retried here.
func (h *Host) Broadcast(s track.Snapshot) {
	payload, err := json.Marshal(coop.Envelope{
		Category: s.Category,
		Version:  s.Version,
		Data:     s.Data,
		SentAt:   s.TakenAt,
	})
	if err != nil {
		logging.Error("marshal broadcast payload", "error", err)
		return
	}
	targets := h.Clients()
	if len(targets) == 0 {
		return
	}
	go h.pushAll(targets, payload)
}

func (h *Host) pushAll(targets []ClientInfo, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout*2)
	defer cancel()

	if err := h.limiter.Wait(ctx); err != nil {
		return
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentPushes)
	for _, target := range targets {
		g.Go(func() error {
			if err := h.push(ctx, target.Addr, payload); err != nil {
				logging.Warn("state push failed", "addr", target.Addr, "error", err)
			}
			return nil // per-client errors never fail the broadcast
		})
	}
	_ = g.Wait()
}

func (h *Host) push(ctx context.Context, addr string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL(addr)+"/v1/state", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set(ProtoHeader, ProtoVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client returned status %d", resp.StatusCode)
	}
	return nil
}

// baseURL normalizes host:port addresses into http URLs.
func baseURL(addr string) string {
	if len(addr) >= 7 && (addr[:7] == "http://" || (len(addr) >= 8 && addr[:8] == "https://")) {
		return addr
	}
	return "http://" + addr
}
