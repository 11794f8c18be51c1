package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chatello/gateway/pkg/storage"

	"github.com/fsnotify/fsnotify"
)

var testNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	store := storage.NewMemoryStore()
	syncer := NewSyncer(store, nil, nil)
	if _, err := syncer.SyncFile(ctx, path); err != nil {
		t.Fatalf("SyncFile failed: %v", err)
	}

	w, err := NewWatcher(path, syncer, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	go w.Watch(ctx)
	time.Sleep(100 * time.Millisecond)

	updated := strings.Replace(sampleCatalog, "price: 9.99", "price: 12.49", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		pro, err := store.GetPlanByName(ctx, "pro")
		if err == nil && pro.Price == 12.49 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Expected pro plan price to be reloaded to 12.49")
}

func TestWatcher_InvalidFileKeepsPlans(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	store := storage.NewMemoryStore()
	syncer := NewSyncer(store, nil, nil)
	if _, err := syncer.SyncFile(ctx, path); err != nil {
		t.Fatalf("SyncFile failed: %v", err)
	}

	w, err := NewWatcher(path, syncer, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	go w.Watch(ctx)
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("plans: ["), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	pro, err := store.GetPlanByName(ctx, "pro")
	if err != nil {
		t.Fatalf("GetPlanByName failed: %v", err)
	}
	if pro.Price != 9.99 {
		t.Errorf("Expected previous price 9.99, got %v", pro.Price)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	w := &Watcher{path: "/etc/chatello/plans.yaml"}

	tests := []struct {
		name  string
		event string
		want  bool
	}{
		{"catalog file", "/etc/chatello/plans.yaml", true},
		{"sibling file", "/etc/chatello/config.yaml", false},
		{"editor swap file", "/etc/chatello/.plans.yaml.swp", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.relevant(fsnotifyWrite(tt.event)); got != tt.want {
				t.Errorf("relevant(%s) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher("", nil, 0, nil); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls atomic.Int32

	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected 1 callback, got %d", got)
	}

	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Stop()
	time.Sleep(80 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected stopped debouncer to drop callbacks, got %d", got)
	}
}

func fsnotifyWrite(name string) fsnotify.Event {
	return fsnotify.Event{Name: name, Op: fsnotify.Write}
}
