package checkpoint

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/ghcrawl/internal/state"
)

const (
	// PartialChunkName is the output file of the active sub-run.
	PartialChunkName = "current.jsonl.partial"

	chunkExt = ".jsonl"

	// maxLineSize bounds one output record. A page of 100 repositories is
	// well below this.
	maxLineSize = 64 * 1024 * 1024
)

// ChunkName returns the file name of a chunk of prefix ended at end.
func ChunkName(prefix string, end time.Time) string {
	return prefix + "-" + FormatTimestamp(end) + chunkExt
}

// ChunkTime returns the end timestamp encoded in a chunk name.
func ChunkTime(name string) (time.Time, error) {
	base, ok := strings.CutSuffix(name, chunkExt)
	if !ok {
		return time.Time{}, fmt.Errorf("not an output chunk: %q", name)
	}
	i := strings.LastIndex(base, "-")
	if i < 0 {
		return time.Time{}, fmt.Errorf("not an output chunk: %q", name)
	}
	return ParseTimestamp(base[i+1:])
}

// ListOutputChunks returns the chunk names of runID ordered by end time.
// The partial file of an active or crashed sub-run is not listed.
func (s *Store) ListOutputChunks(runID string) ([]string, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.RunDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	type chunk struct {
		name string
		end  time.Time
	}
	chunks := make([]chunk, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		end, err := ChunkTime(entry.Name())
		if err != nil {
			continue
		}
		chunks = append(chunks, chunk{name: entry.Name(), end: end})
	}

	slices.SortFunc(chunks, func(a, b chunk) int {
		if c := a.end.Compare(b.end); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})

	names := make([]string, 0, len(chunks))
	for _, c := range chunks {
		names = append(names, c.name)
	}
	return names, nil
}

// ReadChunk reads all records of a chunk. Lines that do not decode, such as
// a line torn by a crash, are skipped.
func (s *Store) ReadChunk(runID, name string) ([]state.OutputRecord, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid chunk name: %q", name)
	}
	return readRecords(s.path(runID, name))
}

// Records calls fn for every record of every chunk of runID, in chunk order.
func (s *Store) Records(runID string, fn func(rec state.OutputRecord) error) error {
	chunks, err := s.ListOutputChunks(runID)
	if err != nil {
		return err
	}

	for _, name := range chunks {
		records, err := s.ReadChunk(runID, name)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func readRecords(path string) ([]state.OutputRecord, error) {
	f, err := os.Open(path) //nolint:gosec // path is built from a validated run id
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	records := make([]state.OutputRecord, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec state.OutputRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// ChunkWriter appends output records to the partial file of a run.
type ChunkWriter struct {
	mu     sync.Mutex
	store  *Store
	runID  string
	prefix string
	f      *os.File
	count  int
}

// OpenChunk opens the partial output file of runID for appending. Chunks of
// the run are named with prefix.
func (s *Store) OpenChunk(runID, prefix string) (*ChunkWriter, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(s.path(runID, PartialChunkName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", PartialChunkName, err)
	}

	return &ChunkWriter{store: s, runID: runID, prefix: prefix, f: f}, nil
}

// Append writes rec as one JSON line.
func (w *ChunkWriter) Append(rec state.OutputRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal output record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return ErrChunkClosed
	}
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", PartialChunkName, err)
	}
	w.count++
	return nil
}

// Count returns the number of records appended.
func (w *ChunkWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close finalizes the partial file into a chunk named by end and returns
// the chunk name. An empty partial file is removed and no chunk is created;
// the returned name is then empty.
func (w *ChunkWriter) Close(end time.Time) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return "", ErrChunkClosed
	}

	syncErr := w.f.Sync()
	closeErr := w.f.Close()
	w.f = nil
	if err := errors.Join(syncErr, closeErr); err != nil {
		return "", fmt.Errorf("close %s: %w", PartialChunkName, err)
	}

	return w.store.finalizePartial(w.runID, w.prefix, end)
}

// finalizePartial renames the partial file of runID to a chunk named by end.
func (s *Store) finalizePartial(runID, prefix string, end time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	partial := s.path(runID, PartialChunkName)
	info, err := os.Stat(partial)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat %s: %w", PartialChunkName, err)
	}
	if info.Size() == 0 {
		if err := os.Remove(partial); err != nil {
			return "", fmt.Errorf("remove empty %s: %w", PartialChunkName, err)
		}
		return "", nil
	}

	name := ChunkName(prefix, end)
	target := s.path(runID, name)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%w: %s", ErrChunkExists, name)
	}
	if err := os.Rename(partial, target); err != nil {
		return "", fmt.Errorf("rename %s: %w", PartialChunkName, err)
	}
	return name, nil
}

// RecoverPartialChunk finalizes the partial file left by a crashed sub-run.
// Only records of tasks that st lists as resolved are kept; the others
// belong to tasks that are still unresolved and will run again. The chunk is
// named by the modification time of the partial file. It returns the chunk
// name, empty when nothing was recovered, and the number of dropped records.
func (s *Store) RecoverPartialChunk(runID string, st *state.ProcessState) (string, int, error) {
	if err := validateRunID(runID); err != nil {
		return "", 0, err
	}

	partial := s.path(runID, PartialChunkName)
	info, err := os.Stat(partial)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("stat %s: %w", PartialChunkName, err)
	}

	records, err := readRecords(partial)
	if err != nil {
		return "", 0, err
	}

	var kept []byte
	dropped := 0
	for _, rec := range records {
		if !st.Resolved.Has(rec.TaskID) {
			dropped++
			continue
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return "", 0, fmt.Errorf("marshal output record: %w", err)
		}
		kept = append(kept, line...)
		kept = append(kept, '\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(kept) == 0 {
		if err := os.Remove(partial); err != nil {
			return "", 0, fmt.Errorf("remove %s: %w", PartialChunkName, err)
		}
		return "", dropped, nil
	}

	name := ChunkName(st.OutputFileName, info.ModTime())
	target := s.path(runID, name)
	if _, err := os.Stat(target); err == nil {
		return "", 0, fmt.Errorf("%w: %s", ErrChunkExists, name)
	}
	if err := writeFileAtomic(target, kept); err != nil {
		return "", 0, err
	}
	if err := os.Remove(partial); err != nil {
		return "", 0, fmt.Errorf("remove %s: %w", PartialChunkName, err)
	}
	return name, dropped, nil
}
