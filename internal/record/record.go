// Package record persists one generation record per (line, generation).
//
// Records live under <dir>/<line>/gen_NNN.json as pretty-printed JSON. Saving
// the same key again replaces the previous record, so a re-run generation
// never leaves duplicates behind. Writes go through a temp file and rename;
// a crash mid-write leaves at most a stray .tmp file that listings ignore.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/critique"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/lineage"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
)

// Record is the persisted snapshot of one generation.
type Record struct {
	Line       string             `json:"line"`
	Generation int                `json:"generation"`
	Branch     string             `json:"branch"`
	Timestamp  time.Time          `json:"timestamp"`
	RunID      string             `json:"run_id,omitempty"`
	Critique   *critique.Critique `json:"critique"`
}

var fileNameRegex = regexp.MustCompile(`^gen_(\d{3,})\.json$`)

// FileName returns the record file name of a generation ("gen_007.json").
func FileName(generation int) string {
	return fmt.Sprintf("gen_%03d.json", generation)
}

// Store reads and writes generation records below a base directory.
type Store struct {
	dir    string
	logger *logging.Logger
	now    func() time.Time
}

// NewStore creates a Store rooted at dir. Nothing is created on disk until
// the first Save.
func NewStore(dir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Store{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns the base directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns where the record of (line, generation) is stored.
func (s *Store) Path(line string, generation int) string {
	return filepath.Join(s.dir, line, FileName(generation))
}

func validateKey(line string, generation int) error {
	if err := lineage.ValidateLine(line); err != nil {
		return err
	}
	if generation < 1 {
		return errors.NewValidationError("generation must be at least 1").
			WithField("generation").
			WithValue(generation)
	}
	return nil
}

// Save writes the record of (line, generation), replacing any existing one.
// The critique is stored as given, degraded or not.
func (s *Store) Save(line string, generation int, c *critique.Critique, runID string) (*Record, error) {
	if err := validateKey(line, generation); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.NewValidationError("critique is required").WithField("critique")
	}

	rec := &Record{
		Line:       line,
		Generation: generation,
		Branch:     lineage.BranchName(line, generation),
		Timestamp:  s.now().UTC().Truncate(time.Second),
		RunID:      runID,
		Critique:   c,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation record: %w", err)
	}
	data = append(data, '\n')

	lineDir := filepath.Join(s.dir, line)
	if err := os.MkdirAll(lineDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}

	path := s.Path(line, generation)
	if err := atomicWriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save generation record: %w", err)
	}

	s.logger.Info("generation record saved",
		"line", line,
		"generation", generation,
		"path", path,
		"degraded", c.Degraded(),
	)
	return rec, nil
}

// Load reads the record of (line, generation). A missing record is a
// *errors.NotFoundError wrapping errors.ErrRecordNotFound.
func (s *Store) Load(line string, generation int) (*Record, error) {
	if err := validateKey(line, generation); err != nil {
		return nil, err
	}

	path := s.Path(line, generation)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("generation record", fmt.Sprintf("%s/%d", line, generation)).
				WithCause(errors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to read generation record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse generation record %s: %w", path, err)
	}
	return &rec, nil
}

// Exists reports whether a record for (line, generation) is stored.
func (s *Store) Exists(line string, generation int) bool {
	if validateKey(line, generation) != nil {
		return false
	}
	_, err := os.Stat(s.Path(line, generation))
	return err == nil
}

// ListGenerations returns the recorded generation numbers of line in
// ascending order. A line with no records yields an empty list.
func (s *Store) ListGenerations(line string) ([]int, error) {
	if err := lineage.ValidateLine(line); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.dir, line))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list generation records: %w", err)
	}

	var generations []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := fileNameRegex.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		generations = append(generations, n)
	}
	sort.Ints(generations)
	return generations, nil
}

// ListLines returns the lines that have a record directory, sorted by name.
func (s *Store) ListLines() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list record lines: %w", err)
	}

	var lines []string
	for _, entry := range entries {
		if !entry.IsDir() || lineage.ValidateLine(entry.Name()) != nil {
			continue
		}
		lines = append(lines, entry.Name())
	}
	sort.Strings(lines)
	return lines, nil
}

// Latest returns the highest-numbered record of line, or nil when the line
// has none.
func (s *Store) Latest(line string) (*Record, error) {
	generations, err := s.ListGenerations(line)
	if err != nil || len(generations) == 0 {
		return nil, err
	}
	return s.Load(line, generations[len(generations)-1])
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Same directory so the rename stays on one filesystem
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
