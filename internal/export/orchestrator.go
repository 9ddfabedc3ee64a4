package export

import (
	"context"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// Config holds the values a single export invocation needs, in the same
// flat Config-struct-plus-env() convention internal/config's LoadExport uses.
type Config struct {
	GitLabURL   string
	GitLabToken string
	OutputDir   string
	RunID       string
}

// components is the fixed set the orchestrator dispatches, in AllComponents
// order for reproducible logging; actual execution order across goroutines
// is not guaranteed and does not need to be, since each writes to its own
// disjoint subdirectory.
var components = []Component{
	RepositoryComponent{},
	CICDComponent{},
	IssuesComponent{},
	MergeRequestsComponent{},
	WikiComponent{},
	ReleasesComponent{},
	PackagesComponent{},
	SettingsComponent{},
}

// RunProject exports all eight components for one project concurrently via
// errgroup.Group, folding each component's result into a shared checkpoint
// that is saved once after the whole fan-out completes. A component error
// never aborts its siblings — it is recorded on that component's entry and
// the checkpoint omits it from completed_components so a resumed run
// retries just that one — failures attach to that component's own
// metadata rather than aborting the others.
func RunProject(ctx context.Context, cfg Config, project schema.Project) (*Checkpoint, error) {
	client := forgeclient.NewGitLabClient(cfg.GitLabURL, cfg.GitLabToken, nil)

	cp, err := Load(cfg.OutputDir, project.ID, cfg.RunID)
	if err != nil {
		return nil, err
	}

	projectDir := filepath.Join(cfg.OutputDir, strconv.FormatInt(project.ID, 10), cfg.RunID)

	results := make([]Result, len(components))
	g, gctx := errgroup.WithContext(ctx)
	for i, comp := range components {
		i, comp := i, comp
		if cp.IsCompleted(comp.Name()) {
			continue
		}
		g.Go(func() error {
			var partial []byte
			if raw, ok := cp.PartialState[comp.Name()]; ok {
				partial = raw
			}
			res, exportErr := comp.Export(gctx, client, project, projectDir, partial)
			if exportErr != nil && res.Status == "" {
				res.Status = "failed"
				res.Error = exportErr.Error()
			}
			results[i] = res
			return nil
		})
	}
	// errgroup.Group.Wait's error is always nil here since every component
	// goroutine swallows its own error into its Result rather than
	// propagating — isolation is the whole point (see doc comment above).
	_ = g.Wait()

	for i, comp := range components {
		res := results[i]
		if res.Status == "" {
			continue // was already completed, skipped this round
		}
		if res.Status == "completed" || res.Status == "skipped" {
			cp.MarkCompleted(comp.Name())
		}
		if res.Partial != nil {
			cp.SetPartial(comp.Name(), res.Partial)
		}
	}

	if err := cp.Save(cfg.OutputDir); err != nil {
		return cp, err
	}
	return cp, nil
}
