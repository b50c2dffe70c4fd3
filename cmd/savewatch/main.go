package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/calder/savewatch/internal/config"
	"github.com/calder/savewatch/internal/coop"
	"github.com/calder/savewatch/internal/coord"
	"github.com/calder/savewatch/internal/logging"
	"github.com/calder/savewatch/internal/peer"
	"github.com/calder/savewatch/internal/registry"
	"github.com/calder/savewatch/internal/saves"
	"github.com/calder/savewatch/internal/sched"
	"github.com/calder/savewatch/internal/store"
	"github.com/calder/savewatch/internal/track"
	"github.com/calder/savewatch/internal/ui"
)

// avatarTimeout bounds each avatar download attempt.
const avatarTimeout = 15 * time.Second

func main() {
	if err := logging.Init(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.SetLevel(cfg.LogLevel)

	// Data directory: ~/.savewatch/
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}
	dataDir := filepath.Join(homeDir, ".savewatch")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	journal, err := store.Open(filepath.Join(dataDir, "savewatch.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer journal.Close()

	// Category registry and progress state
	reg := registry.New()
	manager, err := registry.NewManager(reg, cfg.Category, cfg.Version)
	if err != nil {
		log.Fatalf("Invalid category %q: %v", cfg.Category, err)
	}

	// Tracking engine
	mode, err := cfg.TrackMode()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	reader := saves.NewReader()
	locator := track.NewLocator()
	tracker := track.New(locator, reader, manager, cfg.RefreshInterval())
	tracker.SetMode(mode)
	tracker.SetFixedPath(cfg.FixedPath)
	tracker.SetRoot(cfg.SavesRoot)
	tracker.SetCategory(cfg.Category)
	if cfg.Version != "" {
		tracker.SetVersion(cfg.Version)
	}

	// Outbound request scheduler, journaling terminal states
	scheduler := sched.New(sched.Config{
		MaxConcurrent: cfg.Requests.MaxConcurrent,
		PassCooldown:  cfg.PassCooldown(),
		RetryCooldown: cfg.RetryCooldown(),
	})
	scheduler.SetTerminalObserver(func(url string, st sched.State) {
		if err := journal.RecordRequest(url, st.String(), time.Now()); err != nil {
			logging.Warn("failed to journal request", "url", url, "error", err)
		}
	})

	// Co-op wiring
	adapter := coop.NewAdapter(reg)
	tracker.SetPeerFeed(adapter)

	var servers []*http.Server
	if cfg.Host.Enabled {
		host := peer.NewHost()
		host.SetOnJoin(func(c peer.ClientInfo) {
			if c.AvatarURL == "" {
				return
			}
			scheduler.Submit(sched.NewHTTPRequest(c.AvatarURL, avatarTimeout, func(body []byte) {
				cachePath := filepath.Join(dataDir, "avatars", filepath.Base(c.AvatarURL))
				if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err == nil {
					_ = os.WriteFile(cachePath, body, 0644)
				}
			}))
		})
		tracker.SetBroadcaster(host)
		servers = append(servers, serve(cfg.Host.Listen, host.Handler()))
		logging.Info("hosting co-op session", "listen", cfg.Host.Listen)
	}
	var client *peer.Client
	if cfg.Peer.Enabled {
		client = peer.NewClient(cfg.Peer.HostAddr, cfg.Peer.Listen, cfg.Peer.Name, adapter)
		client.SetOnUnreachable(tracker.ReportPeerUnreachable)
		servers = append(servers, serve(cfg.Peer.Listen, client.Handler()))
		if err := client.Join(ctx); err != nil {
			// Unreachable hosts are a degraded state, not a startup failure;
			// the heartbeat keeps trying and pushes still connect us.
			logging.Warn("could not join co-op host", "error", err)
			tracker.ReportPeerUnreachable(cfg.Peer.HostAddr,
				fmt.Sprintf("co-op host %s unreachable", cfg.Peer.HostAddr))
		}
		client.StartHeartbeat(ctx)
	}

	engine := coord.New(tracker, scheduler, journal, cfg.RefreshInterval())

	app := ui.NewApp(ui.Callbacks{
		ForceRefresh: func() tea.Cmd {
			return func() tea.Msg {
				reader.Invalidate()
				tracker.Invalidate()
				return nil
			}
		},
		ToggleLock: func() tea.Cmd {
			return func() tea.Msg {
				tracker.SetLocked(!tracker.Locked())
				return nil
			}
		},
		CycleMode: func() tea.Cmd {
			return func() tea.Msg {
				tracker.SetMode(nextMode(tracker.Mode()))
				return nil
			}
		},
		LoadProgress: func() tea.Cmd {
			return func() tea.Msg {
				category, version := manager.Current()
				msg := ui.ProgressLoaded{Category: category, Version: version}
				if snap, ok := manager.State(); ok {
					msg.Summary = summarize(snap)
				}
				return msg
			}
		},
	})

	program := tea.NewProgram(app, tea.WithAltScreen())
	engine.Start(ctx, program)

	if _, err := program.Run(); err != nil {
		logging.Error("UI exited with error", "error", err)
	}

	// Shutdown: stop the loop first so nothing broadcasts into dead servers.
	cancel()
	engine.Wait()
	if client != nil {
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 2*time.Second)
		client.Leave(leaveCtx)
		leaveCancel()
		client.Wait()
	}
	for _, srv := range servers {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(shutCtx)
		shutCancel()
	}
}

// serve starts an HTTP listener in the background.
func serve(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}

// nextMode cycles auto -> fixed -> peer -> auto.
func nextMode(m track.Mode) track.Mode {
	switch m {
	case track.ModeAutoDetect:
		return track.ModeFixedPath
	case track.ModeFixedPath:
		return track.ModePeerPush
	default:
		return track.ModeAutoDetect
	}
}

// summarize renders the opaque snapshot payload for the status pane.
func summarize(snap track.Snapshot) string {
	var fields map[string]any
	if err := json.Unmarshal(snap.Data, &fields); err != nil || len(fields) == 0 {
		return snap.Origin.String() + " snapshot"
	}
	if n, ok := fields["advancement_files"].(float64); ok {
		if world, ok := fields["world"].(string); ok {
			return fmt.Sprintf("%s: %d advancement files", world, int(n))
		}
	}
	return fmt.Sprintf("%s snapshot, %d bytes", snap.Origin, len(snap.Data))
}
