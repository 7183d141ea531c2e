package domain

// TemplateSummary is one catalog entry as shown to the selection screen.
type TemplateSummary struct {
	TemplateID string `json:"templateId"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
}

// Catalog lists the templates the kiosk offers.
type Catalog interface {
	List() []TemplateSummary
}

// PackageRef points at an installable template package, resolved from the
// locally installed index. The pipeline processor forwards it verbatim.
type PackageRef struct {
	TemplateCode   string `json:"templateCode"`
	VersionSemver  string `json:"versionSemver"`
	DownloadURL    string `json:"downloadUrl"`
	ChecksumSHA256 string `json:"checksumSha256"`
}

// Resolver maps a catalog template id to its installed package metadata.
type Resolver interface {
	ResolveForPipeline(templateID string) (*PackageRef, error)
}
