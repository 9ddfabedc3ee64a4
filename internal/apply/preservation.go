package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moti-malka/gl2gh-sub000/internal/githubops"
)

const maxAttachmentSize = 100 * 1024 * 1024 // GitHub Contents API limit

func init() {
	Register("commit_attachments", newCommitAttachmentsAction)
	Register("commit_preservation_artifacts", newCommitPreservationArtifactsAction)
}

// commitAttachmentsAction copies exported issue/MR attachment files into
// .github/attachments/{issues,merge_requests}/... on the destination repo,
// skipping anything over the Contents API's 100MB limit.
type commitAttachmentsAction struct {
	id, key                  string
	targetRepo, exportDir    string
	branch, targetBasePath   string
}

func newCommitAttachmentsAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	return &commitAttachmentsAction{
		id: id, key: key, targetRepo: targetRepo,
		exportDir:      paramStringDefault(p, "export_dir", "."),
		branch:         paramStringDefault(p, "branch", "main"),
		targetBasePath: paramStringDefault(p, "target_path", ".github/attachments"),
	}, nil
}

func (a *commitAttachmentsAction) ID() string            { return a.id }
func (a *commitAttachmentsAction) Type() string           { return "commit_attachments" }
func (a *commitAttachmentsAction) IdempotencyKey() string { return a.key }

func (a *commitAttachmentsAction) commitDir(ctx context.Context, ac *Context, owner, repo, dir, subpath string, committed *[]string, urls map[string]string, skipped *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		full := filepath.Join(dir, e.Name())
		if info.Size() > maxAttachmentSize {
			*skipped = append(*skipped, full)
			continue
		}
		content, err := os.ReadFile(full)
		if err != nil {
			*skipped = append(*skipped, full)
			continue
		}
		filePath := fmt.Sprintf("%s/%s/%s", a.targetBasePath, subpath, e.Name())
		msg := "Add attachment: " + e.Name()
		if err := githubops.UpsertFile(ctx, ac.GitHub, owner, repo, a.branch, filePath, string(content), msg); err != nil {
			*skipped = append(*skipped, full)
			continue
		}
		*committed = append(*committed, filePath)
		urls[e.Name()] = fmt.Sprintf("https://github.com/%s/blob/%s/%s", a.targetRepo, a.branch, filePath)
	}
}

func (a *commitAttachmentsAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}

	var committed []string
	var skipped []string
	urls := map[string]string{}

	a.commitDir(ctx, ac, owner, repo, filepath.Join(a.exportDir, "issues", "attachments"), "issues", &committed, urls, &skipped)
	a.commitDir(ctx, ac, owner, repo, filepath.Join(a.exportDir, "merge_requests", "attachments"), "merge_requests", &committed, urls, &skipped)

	return newResult(a.id, a.Type(), true, map[string]any{
		"committed_files":  committed,
		"attachment_urls":  urls,
		"skipped_files":    skipped,
		"count":            len(committed),
		"target_repo":      a.targetRepo,
	}, ""), nil
}

func (a *commitAttachmentsAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would commit attachments to %s", a.targetRepo), nil, true), nil
}

// commitPreservationArtifactsAction writes the migration's own audit trail
// into the destination repo: a metadata.json describing the run and an
// id_mappings.json snapshot of ac.IDMappings.
type commitPreservationArtifactsAction struct {
	id, key              string
	targetRepo, branch   string
	migrationTimestamp   string
}

func newCommitPreservationArtifactsAction(id, key string, p Params) (Action, error) {
	targetRepo, err := paramString(p, "target_repo")
	if err != nil {
		return nil, err
	}
	return &commitPreservationArtifactsAction{
		id: id, key: key, targetRepo: targetRepo,
		branch:             paramStringDefault(p, "branch", "main"),
		migrationTimestamp: paramStringDefault(p, "migration_timestamp", ""),
	}, nil
}

func (a *commitPreservationArtifactsAction) ID() string            { return a.id }
func (a *commitPreservationArtifactsAction) Type() string           { return "commit_preservation_artifacts" }
func (a *commitPreservationArtifactsAction) IdempotencyKey() string { return a.key }

func (a *commitPreservationArtifactsAction) Execute(ctx context.Context, ac *Context) (Result, error) {
	owner, repo, err := splitRepo(a.targetRepo)
	if err != nil {
		return failResult(a, err), nil
	}

	metadata := map[string]any{
		"migration_date": a.migrationTimestamp,
		"source":         "GitLab",
		"tool":           "gl2gh",
		"id_mappings":    ac.IDMappings,
	}
	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return failResult(a, err), nil
	}
	metadataPath := ".github/migration/metadata.json"
	if err := githubops.UpsertFile(ctx, ac.GitHub, owner, repo, a.branch, metadataPath, string(metadataJSON), "Update migration metadata"); err != nil {
		return failResult(a, err), nil
	}

	mappingsJSON, err := json.MarshalIndent(ac.IDMappings, "", "  ")
	if err != nil {
		return failResult(a, err), nil
	}
	mappingsPath := ".github/migration/id_mappings.json"
	if err := githubops.UpsertFile(ctx, ac.GitHub, owner, repo, a.branch, mappingsPath, string(mappingsJSON), "Update ID mappings"); err != nil {
		return failResult(a, err), nil
	}

	return newResult(a.id, a.Type(), true, map[string]any{
		"metadata_committed": true,
		"metadata_path":      metadataPath,
		"mappings_path":      mappingsPath,
		"target_repo":        a.targetRepo,
	}, ""), nil
}

func (a *commitPreservationArtifactsAction) Simulate(ctx context.Context, ac *Context) (Result, error) {
	return simulationResult(a.id, a.Type(), "would_create", fmt.Sprintf("Would commit migration metadata to %s", a.targetRepo), nil, true), nil
}
