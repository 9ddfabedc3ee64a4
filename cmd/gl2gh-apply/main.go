// Command gl2gh-apply runs the Apply agent: loads an action plan as JSON,
// validates every entry's type against the closed action registry, then
// executes (or simulates, in -dry-run) each entry in order against
// GitHub, writing a JSON report to stdout and a run row to the shared run
// registry.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/go-github/v66/github"

	"github.com/moti-malka/gl2gh-sub000/internal/apply"
	"github.com/moti-malka/gl2gh-sub000/internal/config"
	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/runlog"
)

func main() {
	logger := log.New(os.Stdout, "gl2gh-apply ", log.LstdFlags|log.LUTC)

	token := flag.String("token", "", "GitHub token")
	planPath := flag.String("plan", "", "path to an action plan JSON file ([]apply.PlanEntry)")
	dryRun := flag.Bool("dry-run", false, "simulate every action instead of executing it")
	abortOnError := flag.Bool("abort-on-error", false, "stop at the first failed action")
	rollback := flag.Bool("rollback", false, "on abort, replay Rollback for every already-executed action")
	runID := flag.String("run-id", "", "run identifier recorded in the run registry")
	flag.Parse()

	cfg, err := config.LoadApply(config.ApplyFlags{
		GitHubToken:  *token,
		PlanPath:     *planPath,
		DryRun:       *dryRun,
		AbortOnError: *abortOnError,
		Rollback:     *rollback,
	})
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	plan, err := loadPlan(cfg.PlanPath)
	if err != nil {
		logger.Fatalf("load plan: %v", err)
	}
	if err := apply.ValidatePlan(plan); err != nil {
		logger.Fatalf("validate plan: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := runlog.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalf("runlog: %v", err)
	}
	defer store.Close()

	id := *runID
	if id == "" {
		id = cfg.PlanPath
	}
	if err := store.Start(ctx, runlog.AgentApply, id, fmt.Sprintf("plan=%s dry_run=%v", cfg.PlanPath, cfg.DryRun)); err != nil {
		logger.Printf("runlog start: %v", err)
	}

	transport := forgeclient.NewGitHubTokenTransport(cfg.GitHubToken)
	client := github.NewClient(&http.Client{Transport: transport})
	ac := apply.NewContext(client, cfg.GitHubToken, cfg.DryRun)

	errPolicy := apply.ContinueOnError
	if cfg.AbortOnError {
		errPolicy = apply.AbortOnError
	}

	report, runErr := apply.Run(ctx, plan, ac, apply.DefaultRetryPolicy, errPolicy, cfg.Rollback)
	if runErr != nil {
		_ = store.Finish(ctx, runlog.AgentApply, id, runlog.StatusFailed, "", runErr)
		logger.Fatalf("apply: %v", runErr)
	}

	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatalf("marshal report: %v", err)
	}
	fmt.Println(string(raw))

	failures := 0
	for _, r := range report.Results {
		if !r.Success {
			failures++
		}
	}

	status := runlog.StatusSuccess
	var finishErr error
	if failures > 0 || report.Aborted {
		status = runlog.StatusFailed
		finishErr = fmt.Errorf("%d of %d action(s) failed, aborted=%v, rolled_back=%v", failures, len(report.Results), report.Aborted, report.RolledBack)
	}
	summary := fmt.Sprintf("%d/%d actions succeeded", len(report.Results)-failures, len(report.Results))
	_ = store.Finish(ctx, runlog.AgentApply, id, status, summary, finishErr)
	logger.Printf("apply complete: %s", summary)
}

func loadPlan(path string) ([]apply.PlanEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var plan []apply.PlanEntry
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, err
	}
	return plan, nil
}
