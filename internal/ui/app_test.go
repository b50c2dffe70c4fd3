package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/calder/savewatch/internal/track"
)

func sized(t *testing.T, a App) App {
	t.Helper()
	m, _ := a.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m.(App)
}

func TestViewBeforeWindowSize(t *testing.T) {
	a := NewApp(Callbacks{})
	if got := a.View(); got != "Loading..." {
		t.Errorf("expected loading placeholder, got %q", got)
	}
}

func TestStatusUpdateRendered(t *testing.T) {
	a := sized(t, NewApp(Callbacks{}))

	m, _ := a.Update(StatusUpdate{
		Status:       "tracking /saves/world",
		State:        track.StateLocalRead,
		Mode:         track.ModeAutoDetect,
		Source:       "/saves/world",
		SourceExists: true,
	})
	a = m.(App)

	view := a.View()
	if !strings.Contains(view, "tracking /saves/world") {
		t.Errorf("status line missing from view:\n%s", view)
	}
	if !strings.Contains(view, "mode:auto") {
		t.Errorf("mode badge missing from view:\n%s", view)
	}
}

func TestStatusUpdateTriggersProgressReload(t *testing.T) {
	calls := 0
	a := sized(t, NewApp(Callbacks{
		LoadProgress: func() tea.Cmd {
			calls++
			return nil
		},
	}))

	a.Update(StatusUpdate{State: track.StateLocalRead})
	if calls != 1 {
		t.Errorf("local read should reload progress, got %d calls", calls)
	}

	a.Update(StatusUpdate{State: track.StateIdle})
	if calls != 1 {
		t.Errorf("idle tick must not reload progress, got %d calls", calls)
	}
}

func TestQuitKeys(t *testing.T) {
	a := sized(t, NewApp(Callbacks{}))

	for _, key := range []string{"q", "ctrl+c"} {
		var msg tea.KeyMsg
		if key == "ctrl+c" {
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		} else {
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
		}
		_, cmd := a.Update(msg)
		if cmd == nil {
			t.Errorf("key %q should quit", key)
		}
	}
}

func TestActionKeysInvokeCallbacks(t *testing.T) {
	var refreshed, locked, cycled bool
	a := sized(t, NewApp(Callbacks{
		ForceRefresh: func() tea.Cmd { refreshed = true; return nil },
		ToggleLock:   func() tea.Cmd { locked = true; return nil },
		CycleMode:    func() tea.Cmd { cycled = true; return nil },
	}))

	for _, key := range []string{"r", "l", "m"} {
		a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	}
	if !refreshed || !locked || !cycled {
		t.Errorf("callbacks not invoked: r=%v l=%v m=%v", refreshed, locked, cycled)
	}
}

func TestNilCallbacksAreSafe(t *testing.T) {
	a := sized(t, NewApp(Callbacks{}))

	// Must not panic when no callbacks are wired.
	for _, key := range []string{"r", "l", "m"} {
		a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	}
}

func TestErrorStateUsesErrorStyle(t *testing.T) {
	a := sized(t, NewApp(Callbacks{}))

	m, _ := a.Update(StatusUpdate{
		Status: "no save folders found under /saves",
		State:  track.StateErrored,
		Mode:   track.ModeAutoDetect,
	})
	a = m.(App)

	if !strings.Contains(a.View(), "no save folders found under /saves") {
		t.Error("error status missing from view")
	}
}
