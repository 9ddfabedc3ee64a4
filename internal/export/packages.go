package export

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// PackagesComponent exports package registry metadata (npm, Maven, PyPI,
// NuGet, Composer, Conan, Helm, generic). Package file contents are never
// downloaded here, and the apply side has no action that publishes
// packages.
type PackagesComponent struct{}

func (PackagesComponent) Name() string { return ComponentPackages }

type gitlabPackage struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	PackageType string         `json:"package_type"`
	CreatedAt   string         `json:"created_at"`
	Status      string         `json:"status"`
	Links       map[string]any `json:"_links"`
}

type gitlabPackageFile struct {
	ID        int64  `json:"id"`
	FileName  string `json:"file_name"`
	Size      int64  `json:"size"`
	FileMD5   string `json:"file_md5"`
	FileSHA1  string `json:"file_sha1"`
	FileSHA256 string `json:"file_sha256"`
	CreatedAt string `json:"created_at"`
}

type gitlabPackageDetail struct {
	PackageFiles []gitlabPackageFile `json:"package_files"`
	Pipeline     *struct {
		ID     int64  `json:"id"`
		SHA    string `json:"sha"`
		Ref    string `json:"ref"`
		Status string `json:"status"`
		WebURL string `json:"web_url"`
	} `json:"pipeline"`
	Tags []string `json:"tags"`
}

func (PackagesComponent) Export(ctx context.Context, client *forgeclient.Client, project schema.Project, dir string, _ json.RawMessage) (Result, error) {
	packagesDir := filepath.Join(dir, "packages")
	summary := map[string]any{"project_id": project.ID}

	packages, err := listAll[gitlabPackage](ctx, client, ComponentPackages, projectPath(project.ID, "/packages"), nil)
	if err != nil {
		summary["packages_error"] = err.Error()
		if serr := saveJSON(packagesDir, "packages_metadata.json", summary); serr != nil {
			return Result{Status: "failed", Error: serr.Error()}, serr
		}
		return Result{Status: "completed", Summary: summary}, nil
	}

	packageTypes := map[string]int{}
	exported := make([]map[string]any, 0, len(packages))
	for _, pkg := range packages {
		packageTypes[pkg.PackageType]++
		row := map[string]any{
			"id": pkg.ID, "name": pkg.Name, "version": pkg.Version, "package_type": pkg.PackageType,
			"created_at": pkg.CreatedAt, "status": pkg.Status, "_links": pkg.Links,
		}
		var detail gitlabPackageDetail
		if _, derr := client.Get(ctx, ComponentPackages, projectPath(project.ID, "/packages/"+strconv.FormatInt(pkg.ID, 10)), nil, &detail); derr != nil {
			row["details_available"] = false
		} else {
			var totalSize int64
			for _, f := range detail.PackageFiles {
				totalSize += f.Size
			}
			row["details_available"] = true
			row["package_files"] = detail.PackageFiles
			row["total_size"] = totalSize
			row["pipeline"] = detail.Pipeline
			row["tags"] = detail.Tags
		}
		exported = append(exported, row)
	}

	if err := saveJSON(packagesDir, "packages.json", exported); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}

	if len(packages) == 0 {
		summary["packages"] = map[string]any{"total": 0, "note": "No packages found"}
	} else {
		summary["packages"] = map[string]any{"total": len(packages), "package_types": packageTypes, "file": "packages.json"}
	}

	if err := saveJSON(packagesDir, "packages_metadata.json", summary); err != nil {
		return Result{Status: "failed", Error: err.Error()}, err
	}
	return Result{Status: "completed", Summary: summary}, nil
}
