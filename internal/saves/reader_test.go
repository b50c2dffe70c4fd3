package saves

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/calder/savewatch/internal/track"
)

// makeWorld builds a minimal world directory with level.dat and a couple of
// advancement files.
func makeWorld(t *testing.T) string {
	t.Helper()
	world := filepath.Join(t.TempDir(), "world")
	if err := os.MkdirAll(filepath.Join(world, "advancements"), 0755); err != nil {
		t.Fatal(err)
	}
	files := []string{
		"level.dat",
		filepath.Join("advancements", "player-a.json"),
		filepath.Join("advancements", "player-b.json"),
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(world, f), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return world
}

func TestTryRefreshWithoutPath(t *testing.T) {
	r := NewReader()
	if r.TryRefresh() {
		t.Error("a reader without a path has nothing to refresh")
	}
}

func TestTryRefreshOnPathChange(t *testing.T) {
	r := NewReader()
	r.SetPath(makeWorld(t))

	if !r.TryRefresh() {
		t.Error("a new path should report a change")
	}
	if r.TryRefresh() {
		t.Error("nothing changed since the last read")
	}

	// Same path again is a no-op.
	r.SetPath(r.path)
	if r.TryRefresh() {
		t.Error("re-setting the identical path should not report a change")
	}
}

func TestTryRefreshOnInvalidate(t *testing.T) {
	r := NewReader()
	r.SetPath(makeWorld(t))
	r.TryRefresh()

	r.Invalidate()
	if !r.TryRefresh() {
		t.Error("invalidation must force a change report")
	}
	if r.TryRefresh() {
		t.Error("invalidation is consumed by one refresh")
	}
}

func TestTryRefreshOnSaveWrite(t *testing.T) {
	r := NewReader()
	world := makeWorld(t)
	r.SetPath(world)
	r.TryRefresh()

	// A newer write to level.dat signals progress.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(world, "level.dat"), future, future); err != nil {
		t.Fatal(err)
	}
	if !r.TryRefresh() {
		t.Error("a rewritten save file should report a change")
	}
}

func TestStateSummarizesWorld(t *testing.T) {
	r := NewReader()
	world := makeWorld(t)
	r.SetPath(world)
	r.TryRefresh()

	snap := r.State()
	if snap.Origin != track.OriginLocalRead {
		t.Errorf("expected local-read origin, got %v", snap.Origin)
	}

	var summary struct {
		World            string `json:"world"`
		AdvancementFiles int    `json:"advancement_files"`
	}
	if err := json.Unmarshal(snap.Data, &summary); err != nil {
		t.Fatalf("summary is not valid JSON: %v", err)
	}
	if summary.World != "world" {
		t.Errorf("world = %q, want %q", summary.World, "world")
	}
	if summary.AdvancementFiles != 2 {
		t.Errorf("advancement_files = %d, want 2", summary.AdvancementFiles)
	}
}
