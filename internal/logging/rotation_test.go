package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates missing directories", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "nested", "dir", "test.log")

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer rw.Close()

		if _, err := os.Stat(logPath); err != nil {
			t.Errorf("log file not created: %v", err)
		}
		if rw.FilePath() != logPath {
			t.Errorf("FilePath() = %q, want %q", rw.FilePath(), logPath)
		}
	})

	t.Run("picks up size of existing file", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "test.log")
		if err := os.WriteFile(logPath, []byte("existing\n"), 0644); err != nil {
			t.Fatal(err)
		}

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer rw.Close()

		if got := rw.CurrentSize(); got != int64(len("existing\n")) {
			t.Errorf("CurrentSize() = %d, want %d", got, len("existing\n"))
		}
	})
}

func TestRotatingWriterRotation(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	rw, err := NewRotatingWriter(logPath, RotationConfig{MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.maxSizeB = 20

	// Each write is 15 bytes, so every write after the first rotates.
	for _, msg := range []string{"first message\n", "second messag\n", "third message\n", "fourth messag\n"} {
		if _, err := rw.Write([]byte(msg)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	read := func(path string) string {
		t.Helper()
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		return string(data)
	}

	if got := read(logPath); got != "fourth messag\n" {
		t.Errorf("current = %q", got)
	}
	if got := read(logPath + ".1"); got != "third message\n" {
		t.Errorf("backup 1 = %q", got)
	}
	if got := read(logPath + ".2"); got != "second messag\n" {
		t.Errorf("backup 2 = %q", got)
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("expected oldest backup beyond MaxBackups to be removed")
	}
}

func TestRotatingWriterNoBackups(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rw, err := NewRotatingWriter(logPath, RotationConfig{MaxBackups: 0})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.maxSizeB = 10

	_, _ = rw.Write([]byte("aaaaaaaa\n"))
	_, _ = rw.Write([]byte("bbbbbbbb\n"))
	_ = rw.Close()

	data, _ := os.ReadFile(logPath)
	if string(data) != "bbbbbbbb\n" {
		t.Errorf("log = %q, want only the last write", data)
	}
	if _, err := os.Stat(logPath + ".1"); !os.IsNotExist(err) {
		t.Error("no backups should be kept")
	}
}

func TestRotatingWriterCompression(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rw, err := NewRotatingWriter(logPath, RotationConfig{MaxBackups: 3, Compress: true})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.maxSizeB = 50

	first := "test message for compression test\n"
	for range 2 {
		_, _ = rw.Write([]byte(first))
	}
	_ = rw.Close()

	if _, err := os.Stat(logPath + ".1"); !os.IsNotExist(err) {
		t.Error("uncompressed backup should have been removed")
	}

	gzFile, err := os.Open(logPath + ".1.gz")
	if err != nil {
		t.Fatalf("failed to open gzip file: %v", err)
	}
	defer gzFile.Close()

	gzReader, err := gzip.NewReader(gzFile)
	if err != nil {
		t.Fatalf("failed to create gzip reader: %v", err)
	}
	defer gzReader.Close()

	content, err := io.ReadAll(gzReader)
	if err != nil {
		t.Fatalf("failed to read gzip content: %v", err)
	}
	if string(content) != first {
		t.Errorf("decompressed = %q, want %q", content, first)
	}
}

func TestRotatingWriterConcurrency(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rw, err := NewRotatingWriter(logPath, RotationConfig{MaxBackups: 50})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.maxSizeB = 512

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				_, _ = rw.Write([]byte(strings.Repeat("x", 31) + "\n"))
			}
		}()
	}
	wg.Wait()
	_ = rw.Close()

	var total int
	matches, _ := filepath.Glob(logPath + "*")
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			t.Fatalf("read %s: %v", m, err)
		}
		total += strings.Count(string(data), "\n")
	}
	if total != 200 {
		t.Errorf("total lines across files = %d, want 200", total)
	}
}

func TestRotatingWriterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "test.log"), DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}

	if err := rw.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("Write after Close should fail")
	}
}

func TestNewLoggerRotates(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo, RotationConfig{MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	big := strings.Repeat("y", 64*1024)
	for range 20 {
		logger.Info("bulk", "payload", big)
	}
	logger.Close()

	if _, err := os.Stat(filepath.Join(dir, LogFileName+".1")); err != nil {
		t.Errorf("expected a rotated backup: %v", err)
	}
}

func TestDefaultRotationConfig(t *testing.T) {
	cfg := DefaultRotationConfig()
	if cfg.MaxSizeMB != 10 || cfg.MaxBackups != 3 || cfg.Compress {
		t.Errorf("DefaultRotationConfig() = %+v", cfg)
	}
}
