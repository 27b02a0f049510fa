package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func touch(t *testing.T, dir, name string, mod time.Time) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("img"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIsCapture(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"shot.png", true},
		{"shot.jpg", true},
		{"shot.jpeg", true},
		{"IMG_0042.JPG", true},
		{"/captures/night.PNG", true},
		{"shot.gif", false},
		{"shot.png.txt", false},
		{"notes.txt", false},
		{".tmp-shot.png", false},
		{"png", false},
	}
	for _, tt := range tests {
		if got := IsCapture(tt.path); got != tt.want {
			t.Errorf("IsCapture(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)

	touch(t, dir, "first.png", base)
	want := touch(t, dir, "third.JPG", base.Add(2*time.Minute))
	touch(t, dir, "second.jpeg", base.Add(time.Minute))
	touch(t, dir, "newest-but-not-image.txt", base.Add(time.Hour))
	if err := os.Mkdir(filepath.Join(dir, "newer.png"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := Latest(dir)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got != want {
		t.Errorf("Latest() = %q, want %q", got, want)
	}
}

func TestLatest_TieBreaksByName(t *testing.T) {
	dir := t.TempDir()
	mod := time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)

	touch(t, dir, "a.png", mod)
	want := touch(t, dir, "b.png", mod)

	got, err := Latest(dir)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got != want {
		t.Errorf("Latest() = %q, want %q", got, want)
	}
}

func TestLatest_None(t *testing.T) {
	for name, dir := range map[string]string{
		"empty":   t.TempDir(),
		"missing": filepath.Join(t.TempDir(), "captures"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Latest(dir)
			var notFound *errors.NotFoundError
			if !errors.As(err, &notFound) {
				t.Fatalf("Latest() error = %v, want *errors.NotFoundError", err)
			}
			if notFound.ResourceID != dir {
				t.Errorf("ResourceID = %q, want %q", notFound.ResourceID, dir)
			}
		})
	}
}

func TestWatcherNext(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures")
	w, err := NewWatcher(dir, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("NewWatcher should create the directory: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644)
		_ = os.WriteFile(filepath.Join(dir, "night.png"), []byte("img"), 0644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := w.Next(ctx)
	<-done
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if want := filepath.Join(dir, "night.png"); got != want {
		t.Errorf("Next() = %q, want %q", got, want)
	}
}

func TestWatcherNext_Canceled(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := w.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestWatcherNext_Closed(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	_ = w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := w.Next(ctx); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Next() after Close error = %v, want ErrWatcherClosed", err)
	}
}
