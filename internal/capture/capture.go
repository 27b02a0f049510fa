// Package capture finds the display screenshots that feed the critic.
//
// Captures are image files (*.jpg, *.jpeg, *.png, any case) dropped into a
// single directory by whatever photographs the device. Latest picks the most
// recently modified one; Watcher waits for the next one to arrive.
package capture

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
)

// Pattern matches capture file names (lower-cased before matching).
const Pattern = "*.{jpg,jpeg,png}"

var capturePattern = glob.MustCompile(Pattern)

// IsCapture reports whether path names a capture image.
func IsCapture(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return capturePattern.Match(strings.ToLower(base))
}

// Latest returns the most recently modified capture in dir. Ties on
// modification time go to the lexically greatest name so the choice is
// stable. An empty or missing directory is a *errors.NotFoundError.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", errors.Wrap(err, "failed to read captures directory")
	}

	var (
		best     string
		bestTime time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || !IsCapture(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if best == "" || mod.After(bestTime) || (mod.Equal(bestTime) && entry.Name() > filepath.Base(best)) {
			best = filepath.Join(dir, entry.Name())
			bestTime = mod
		}
	}

	if best == "" {
		return "", errors.NewNotFoundError("capture", dir).
			WithCause(errors.New("no *.jpg, *.jpeg or *.png files"))
	}
	return best, nil
}
