// Command gl2gh-sow synthesizes a Statement of Work Markdown document from
// a prior Discovery run's inventory.json: a deterministic metric
// aggregation over the selected (or all) projects, plus an optional
// LLM-generated narrative section when -ai is set.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/moti-malka/gl2gh-sub000/internal/analyzer"
	"github.com/moti-malka/gl2gh-sub000/internal/config"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
	"github.com/moti-malka/gl2gh-sub000/internal/sow"
)

func main() {
	logger := log.New(os.Stderr, "gl2gh-sow ", log.LstdFlags|log.LUTC)

	inventoryPath := flag.String("inventory", "", "path to a discovery inventory.json")
	outputPath := flag.String("output", "", "path to write the generated Markdown document")
	clientName := flag.String("client", "", "client name for the document header")
	projectIDs := flag.String("project-ids", "", "comma-separated GitLab project IDs to include (default: all)")
	narrativeChunk := flag.Int("narrative-chunk-size", 0, "projects per narrative call (0 uses the package default)")
	useAI := flag.Bool("ai", false, "append an LLM-generated narrative section")
	flag.Parse()

	if *inventoryPath == "" {
		logger.Fatalf("missing -inventory")
	}
	if *outputPath == "" {
		logger.Fatalf("missing -output")
	}

	inv, err := loadInventory(*inventoryPath)
	if err != nil {
		logger.Fatalf("load inventory: %v", err)
	}

	ids, err := parseIDs(*projectIDs)
	if err != nil {
		logger.Fatalf("parse -project-ids: %v", err)
	}

	var llm *analyzer.LLMClient
	if *useAI {
		ai := config.AIConfigFromEnv()
		if ai.Enabled {
			llm = analyzer.NewLLMClient(analyzer.LLMConfig{
				Endpoint:   ai.Endpoint,
				APIKey:     ai.APIKey,
				Deployment: ai.Deployment,
				APIVersion: ai.APIVersion,
			})
		} else {
			logger.Printf("-ai set but GL2GH_AI_ENABLED is not true, falling back to templated narrative")
		}
	}

	result, err := sow.Generate(context.Background(), sow.Request{
		SelectedProjectIDs: ids,
		Inventory:          inv,
		Options: sow.Options{
			ClientName:         *clientName,
			EngagementStart:    time.Now().UTC(),
			NarrativeChunkSize: *narrativeChunk,
		},
	}, llm)
	if err != nil {
		logger.Fatalf("generate: %v", err)
	}

	if err := os.WriteFile(*outputPath, []byte(result.Markdown), 0o644); err != nil {
		logger.Fatalf("write output: %v", err)
	}
	logger.Printf("wrote %s: %d projects, %.0f-%.0f estimated hours",
		*outputPath, result.Metrics.TotalProjects, result.Metrics.HoursLow, result.Metrics.HoursHigh)
}

func loadInventory(path string) (*schema.Inventory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inv schema.Inventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func parseIDs(csv string) ([]int64, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
