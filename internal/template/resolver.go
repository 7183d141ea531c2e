package template

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/snapkiosk/boothd/internal/domain"
	"github.com/snapkiosk/boothd/internal/errors"
)

// index mirrors data/index.json as written by the template package installer.
// schemaVersion 2: the templateId field stores the template code.
type index struct {
	SchemaVersion int         `json:"schemaVersion"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	Items         []indexItem `json:"items"`
}

type indexItem struct {
	TemplateID  string `json:"templateId"`
	Version     string `json:"version"`
	DownloadURL string `json:"downloadUrl"`
	Checksum    string `json:"checksum"`
}

// IndexResolver resolves catalog template ids against the locally installed
// package index. Fully offline; the index is re-read per resolve so installer
// updates take effect without a restart.
type IndexResolver struct {
	dataDir string
	catalog domain.Catalog
}

func NewIndexResolver(dataDir string, catalog domain.Catalog) *IndexResolver {
	return &IndexResolver{dataDir: dataDir, catalog: catalog}
}

func (r *IndexResolver) ResolveForPipeline(templateID string) (*domain.PackageRef, error) {
	if templateID == "" {
		return nil, errors.ValidationError("templateId is required")
	}

	if !IsEnabled(r.catalog, templateID) {
		return nil, errors.NotFoundError(fmt.Sprintf("template not found or disabled: %s", templateID))
	}

	indexFile := filepath.Join(r.dataDir, "index.json")
	idx, err := readIndex(indexFile)
	if err != nil {
		return nil, errors.NotFoundError(fmt.Sprintf("template %s is not installed: %v", templateID, err)).
			WithContext("indexFile", indexFile)
	}

	for _, item := range idx.Items {
		if item.TemplateID == templateID {
			slog.Debug("Resolved template package",
				"template_id", templateID,
				"version", item.Version,
				"index_file", indexFile)
			return &domain.PackageRef{
				TemplateCode:   item.TemplateID,
				VersionSemver:  item.Version,
				DownloadURL:    item.DownloadURL,
				ChecksumSHA256: item.Checksum,
			}, nil
		}
	}

	return nil, errors.NotFoundError(fmt.Sprintf("template %s is not installed", templateID)).
		WithContext("indexFile", indexFile).
		WithContext("installedCount", len(idx.Items))
}

func readIndex(path string) (*index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return &idx, nil
}
