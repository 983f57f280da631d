package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/nao1215/ghcrawl/internal/state"
)

const (
	// StateFileName is the name of the state file inside a run directory.
	StateFileName = "state.json"

	// TimestampLayout names run directories and output chunks. It is fixed
	// width, so lexical order equals chronological order.
	TimestampLayout = "20060102T150405.000000000Z"
)

// FormatTimestamp formats t in UTC with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a TimestampLayout timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// Store is the directory-per-run checkpoint layout rooted at a base
// directory. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	baseDir string
}

// New creates a Store rooted at baseDir. The directory is created lazily.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// RunDir returns the directory of runID.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

func (s *Store) path(runID, name string) string {
	return filepath.Join(s.baseDir, runID, name)
}

// validateRunID rejects anything that is not a run timestamp, which also
// keeps user-supplied ids from escaping the base directory.
func validateRunID(runID string) error {
	if _, err := ParseTimestamp(runID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	return nil
}

// NewRun creates the directory of a run started at now and returns its id.
func (s *Store) NewRun(now time.Time) (string, error) {
	runID := FormatTimestamp(now)

	if err := os.MkdirAll(s.baseDir, 0o750); err != nil {
		return "", fmt.Errorf("create checkpoint dir: %w", err)
	}
	if err := os.Mkdir(s.RunDir(runID), 0o750); err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %s", ErrRunExists, runID)
		}
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return runID, nil
}

// ListRuns returns the ids of all runs, oldest first.
func (s *Store) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || validateRunID(entry.Name()) != nil {
			continue
		}
		runs = append(runs, entry.Name())
	}
	slices.Sort(runs)
	return runs, nil
}

// LatestRun returns the id of the most recent run, or an empty string when
// there is none.
func (s *Store) LatestRun() (string, error) {
	runs, err := s.ListRuns()
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", nil
	}
	return runs[len(runs)-1], nil
}

// Load reads the state of runID. It returns nil and no error when the run
// has no state file yet.
func (s *Store) Load(runID string) (*state.ProcessState, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(runID, StateFileName))
	if err != nil {
		if os.IsNotExist(err) {
			if _, statErr := os.Stat(s.RunDir(runID)); os.IsNotExist(statErr) {
				return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var st state.ProcessState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state of run %s: %w", runID, err)
	}
	st.Normalize()
	return &st, nil
}

// Save writes the state of runID atomically.
func (s *Store) Save(runID string, st *state.ProcessState) error {
	if err := validateRunID(runID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return writeFileAtomic(s.path(runID, StateFileName), data)
}

// writeFileAtomic writes content to path with a temp file and a rename.
func writeFileAtomic(path string, content []byte) error {
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("write %s tmp: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
