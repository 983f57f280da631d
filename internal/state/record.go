package state

import "github.com/nao1215/ghcrawl/internal/task"

// OutputRecord is one line of an output chunk: the result of a resolved task.
type OutputRecord struct {
	TaskID string       `json:"taskId"`
	Result *task.Result `json:"result"`
}
