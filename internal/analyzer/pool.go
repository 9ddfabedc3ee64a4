package analyzer

import (
	"context"
	"sync"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

const defaultWorkers = 4

// Config configures one Deep Analyzer pass over a ranked project list.
type Config struct {
	BaseURL    string
	Token      string
	TopN       int
	Workers    int
	LLM        LLMConfig
}

// Run enriches the top-N ranked projects in inv with repo/CI/integration
// profiles and an estimate, using a fixed-size worker pool. Enrichment
// mutates inv.Projects in place
// (by index) so callers see the fully enriched inventory on return.
func Run(ctx context.Context, cfg Config, inv *schema.Inventory) error {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	client := forgeclient.NewGitLabClient(cfg.BaseURL, cfg.Token, nil)
	var llm *LLMClient
	if cfg.LLM.Configured() {
		llm = NewLLMClient(cfg.LLM)
	}

	ranked := Rank(inv.Projects)
	selected := TopN(ranked, cfg.TopN)
	indexByID := make(map[int64]int, len(inv.Projects))
	for i, p := range inv.Projects {
		indexByID[p.ID] = i
	}

	jobs := make(chan int64)
	var wg sync.WaitGroup
	var mu sync.Mutex // guards inv.Projects writes

	worker := func() {
		defer wg.Done()
		for id := range jobs {
			if ctx.Err() != nil {
				continue
			}
			idx, ok := indexByID[id]
			if !ok {
				continue
			}

			enriched, err := enrichOne(ctx, client, llm, &inv.Projects[idx])

			mu.Lock()
			if err == nil {
				inv.Projects[idx] = *enriched
			}
			mu.Unlock()
		}
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}

sendLoop:
	for _, id := range selected {
		select {
		case jobs <- id:
		case <-ctx.Done():
			break sendLoop
		}
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}
