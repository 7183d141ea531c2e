// Package template provides the template catalog and installed-package resolution.
package template

import (
	"github.com/snapkiosk/boothd/internal/domain"
)

// StaticCatalog serves the fixed template set the kiosk ships with.
type StaticCatalog struct{}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{}
}

func (c *StaticCatalog) List() []domain.TemplateSummary {
	return []domain.TemplateSummary{
		{TemplateID: "tpl_001", Name: "NewYear", Enabled: true},
		{TemplateID: "tpl_002", Name: "SpringFest", Enabled: true},
		{TemplateID: "tpl_003", Name: "BrandDay", Enabled: true},
		{TemplateID: "tpl_004", Name: "Minimal", Enabled: true},
		{TemplateID: "tpl_005", Name: "FunFrame", Enabled: false},
	}
}

// IsEnabled reports whether templateID exists in the catalog with Enabled set.
func IsEnabled(catalog domain.Catalog, templateID string) bool {
	for _, t := range catalog.List() {
		if t.Enabled && t.TemplateID == templateID {
			return true
		}
	}
	return false
}
