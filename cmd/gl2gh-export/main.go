// Command gl2gh-export runs the Export agent for a single project: fans
// its eight components out concurrently and writes a resumable checkpoint
// under -output. The project's metadata (path, default branch,
// visibility) is read from a prior Discovery run's inventory.json rather
// than re-resolved, since Discovery already paid the API calls to learn
// it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/moti-malka/gl2gh-sub000/internal/config"
	"github.com/moti-malka/gl2gh-sub000/internal/export"
	"github.com/moti-malka/gl2gh-sub000/internal/runlog"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

func main() {
	logger := log.New(os.Stdout, "gl2gh-export ", log.LstdFlags|log.LUTC)

	gitlabURL := flag.String("gitlab-url", "", "GitLab base URL")
	token := flag.String("token", "", "GitLab personal access token")
	outputDir := flag.String("output", "", "output directory for export artifacts")
	projectID := flag.Int64("project-id", 0, "GitLab project ID to export")
	runID := flag.String("run-id", "", "run identifier (groups a checkpoint + its artifacts)")
	inventoryPath := flag.String("inventory", "", "path to a discovery inventory.json naming the project")
	flag.Parse()

	cfg, err := config.LoadExport(config.ExportFlags{
		GitLabURL:   *gitlabURL,
		GitLabToken: *token,
		OutputDir:   *outputDir,
		ProjectID:   *projectID,
		RunID:       *runID,
	})
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *inventoryPath == "" {
		logger.Fatalf("missing -inventory (discovery inventory.json)")
	}

	project, err := loadProject(*inventoryPath, cfg.ProjectID)
	if err != nil {
		logger.Fatalf("load project: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := runlog.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalf("runlog: %v", err)
	}
	defer store.Close()

	target := fmt.Sprintf("project=%d run=%s", cfg.ProjectID, cfg.RunID)
	if err := store.Start(ctx, runlog.AgentExport, cfg.RunID, target); err != nil {
		logger.Printf("runlog start: %v", err)
	}

	cp, runErr := export.RunProject(ctx, export.Config{
		GitLabURL:   cfg.GitLabURL,
		GitLabToken: cfg.GitLabToken,
		OutputDir:   cfg.OutputDir,
		RunID:       cfg.RunID,
	}, *project)
	if runErr != nil {
		_ = store.Finish(ctx, runlog.AgentExport, cfg.RunID, runlog.StatusFailed, "", runErr)
		logger.Fatalf("export: %v", runErr)
	}

	failed := 0
	for _, comp := range export.AllComponents {
		if !cp.IsCompleted(comp) {
			failed++
		}
	}

	status := runlog.StatusSuccess
	summary := fmt.Sprintf("%d/%d components completed", len(export.AllComponents)-failed, len(export.AllComponents))
	var finishErr error
	if failed > 0 {
		status = runlog.StatusFailed
		finishErr = fmt.Errorf("%d component(s) incomplete, rerun with -resume semantics (same -run-id) to retry", failed)
	}
	_ = store.Finish(ctx, runlog.AgentExport, cfg.RunID, status, summary, finishErr)
	logger.Printf("export complete: %s", summary)
}

func loadProject(inventoryPath string, projectID int64) (*schema.Project, error) {
	raw, err := os.ReadFile(inventoryPath)
	if err != nil {
		return nil, err
	}
	var inv schema.Inventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}
	for i := range inv.Projects {
		if inv.Projects[i].ID == projectID {
			return &inv.Projects[i], nil
		}
	}
	return nil, fmt.Errorf("project %d not found in %s", projectID, inventoryPath)
}
