// Command gl2gh-discover runs the Discovery agent: walks a GitLab group
// tree or a single project, gathers facts within an API budget,
// optionally runs deep analysis, and writes a schema-validated
// inventory.json to -output. main.go parses flags inline, with no CLI
// framework — a handful of flags this size doesn't warrant one.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/moti-malka/gl2gh-sub000/internal/analyzer"
	"github.com/moti-malka/gl2gh-sub000/internal/config"
	"github.com/moti-malka/gl2gh-sub000/internal/discovery"
	"github.com/moti-malka/gl2gh-sub000/internal/runlog"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
	"github.com/moti-malka/gl2gh-sub000/internal/statusapi"
)

func main() {
	logger := log.New(os.Stdout, "gl2gh-discover ", log.LstdFlags|log.LUTC)

	baseURL := flag.String("base-url", "", "GitLab base URL")
	token := flag.String("token", "", "GitLab personal access token")
	rootGroup := flag.String("root-group", "", "root group full path to walk")
	projectPath := flag.String("project-path", "", "single project path to discover")
	outputDir := flag.String("output", "", "output directory for inventory.json and checkpoint")
	maxAPICalls := flag.Int("max-api-calls", 0, "global API call budget")
	maxPerProject := flag.Int("max-per-project-calls", 0, "per-project API call budget")
	deep := flag.Bool("deep", false, "run deep analysis after discovery")
	deepTopN := flag.Int("deep-top-n", 0, "number of top-ranked projects to deep-analyze")
	workers := flag.Int("parallel-workers", 0, "deep analyzer worker pool size")
	resume := flag.Bool("resume", false, "resume from an existing discovery checkpoint")
	statusAddr := flag.String("status-addr", "", "optional addr (e.g. :8090) to serve a local progress endpoint")
	flag.Parse()

	cfg, err := config.LoadDiscovery(config.DiscoveryFlags{
		BaseURL:       *baseURL,
		Token:         *token,
		RootGroup:     *rootGroup,
		ProjectPath:   *projectPath,
		OutputDir:     *outputDir,
		MaxAPICalls:   *maxAPICalls,
		MaxPerProject: *maxPerProject,
		Deep:          *deep,
		DeepTopN:      *deepTopN,
		Workers:       *workers,
		StatusAddr:    *statusAddr,
	})
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := runlog.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalf("runlog: %v", err)
	}
	defer store.Close()

	mode := discovery.ModeAllGroups
	target := cfg.BaseURL
	switch {
	case cfg.ProjectPath != "":
		mode = discovery.ModeSingleProject
		target = cfg.ProjectPath
	case cfg.RootGroup != "":
		mode = discovery.ModeRootGroup
		target = cfg.RootGroup
	}

	runID := runIDFromOutputDir(cfg.OutputDir)
	if err := store.Start(ctx, runlog.AgentDiscovery, runID, target); err != nil {
		logger.Printf("runlog start: %v", err)
	}

	monitor := discovery.NewStateMonitor()
	if cfg.StatusAddr != "" {
		srv := statusapi.New(monitor, store, logger)
		go func() {
			if err := statusapi.Serve(ctx, cfg.StatusAddr, srv.Router()); err != nil {
				logger.Printf("status server: %v", err)
			}
		}()
	}

	inv, runErr := discovery.Run(ctx, discovery.Config{
		BaseURL:       cfg.BaseURL,
		Token:         cfg.Token,
		Mode:          mode,
		RootGroupPath: cfg.RootGroup,
		ProjectPath:   cfg.ProjectPath,
		MaxAPICalls:   cfg.MaxAPICalls,
		OutputDir:     cfg.OutputDir,
		Resume:        *resume,
		Monitor:       monitor,
	})
	if runErr != nil {
		_ = store.Finish(ctx, runlog.AgentDiscovery, runID, runlog.StatusFailed, "", runErr)
		logger.Fatalf("discovery: %v", runErr)
	}

	if cfg.Deep {
		llmCfg := analyzer.LLMConfig{}
		if cfg.AI.Enabled {
			llmCfg = analyzer.LLMConfig{
				Endpoint:   cfg.AI.Endpoint,
				APIKey:     cfg.AI.APIKey,
				Deployment: cfg.AI.Deployment,
				APIVersion: cfg.AI.APIVersion,
			}
		}
		if err := analyzer.Run(ctx, analyzer.Config{
			BaseURL: cfg.BaseURL,
			Token:   cfg.Token,
			TopN:    cfg.DeepTopN,
			Workers: cfg.Workers,
			LLM:     llmCfg,
		}, inv); err != nil {
			logger.Printf("deep analysis: %v", err)
		}
	}

	if err := writeInventory(cfg.OutputDir, inv); err != nil {
		_ = store.Finish(ctx, runlog.AgentDiscovery, runID, runlog.StatusFailed, "", err)
		logger.Fatalf("write inventory: %v", err)
	}

	summary := fmt.Sprintf("%d groups, %d projects, %d api calls", inv.Run.Stats.Groups, inv.Run.Stats.Projects, inv.Run.Stats.APICalls)
	_ = store.Finish(ctx, runlog.AgentDiscovery, runID, runlog.StatusSuccess, summary, nil)
	logger.Printf("discovery complete: %s", summary)
}

func runIDFromOutputDir(dir string) string {
	if dir == "" {
		return "default"
	}
	return filepath.Base(filepath.Clean(dir))
}

func writeInventory(outputDir string, inv *schema.Inventory) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "inventory.json"), raw, 0o644)
}
