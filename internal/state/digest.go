package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nao1215/ghcrawl/internal/config"
	"github.com/nao1215/ghcrawl/internal/task"
	"golang.org/x/crypto/sha3"
)

// ConfigDigest fingerprints the configuration that seeds a run. Resuming a
// run with a configuration of a different digest would mix two crawls in one
// output, so the resume command compares digests.
func ConfigDigest(kind task.Kind, cc config.CrawlConfig) (string, error) {
	data, err := json.Marshal(struct {
		Kind  task.Kind          `json:"kind"`
		Crawl config.CrawlConfig `json:"crawl"`
	}{Kind: kind, Crawl: cc})
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
