package pipeline

import (
	"slices"

	"github.com/nao1215/ghcrawl/internal/checkpoint"
	"github.com/nao1215/ghcrawl/internal/model"
	"github.com/nao1215/ghcrawl/internal/state"
)

// Summarize builds the summary of runID from its state and output chunks.
// Items counts the records of finalized chunks only; a partial file left
// by a running or crashed execution is not included.
func Summarize(store *checkpoint.Store, runID string, st *state.ProcessState) (*model.RunSummary, error) {
	unresolved, resolved, errored, archived := st.Counts()

	completionError := ""
	if st.CompletionError != nil {
		completionError = *st.CompletionError
	}

	summary := model.NewRunSummary(runID, st.StartDate, st.CompletionDate, completionError,
		unresolved, resolved, errored, archived)
	summary.Kind = string(st.StartingConfig.Kind)
	summary.ConfigDigest = st.ConfigDigest

	chunks, err := store.ListOutputChunks(runID)
	if err != nil {
		return nil, err
	}
	summary.Chunks = append(summary.Chunks, chunks...)

	for _, name := range chunks {
		records, err := store.ReadChunk(runID, name)
		if err != nil {
			return nil, err
		}
		summary.Items += len(records)
	}

	for _, h := range st.History {
		sub := model.SubRunSummary{
			StartDate:      h.StartDate,
			CompletionDate: h.CompletionDate,
			Resolved:       h.Resolved,
		}
		if h.CompletionError != nil {
			sub.CompletionError = *h.CompletionError
		}
		summary.History = append(summary.History, sub)
	}

	for _, id := range sortedKeys(st.Errored) {
		rec := st.Errored[id]
		entry := model.TaskErrorEntry{
			TaskID:  id,
			Window:  rec.Spec.Window.String(),
			Message: rec.Message,
		}
		if rec.Spec.StartCursor != nil {
			entry.Cursor = *rec.Spec.StartCursor
		}
		summary.Errors = append(summary.Errors, entry)
	}

	return summary, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
