package registry

import "github.com/pesde-pm/pesde/internal/urltemplate"

// defaultDownloadTemplate is used when an index's config.toml doesn't
// publish its own `download` template.
const defaultDownloadTemplate = "{API_URL}/v0/packages/{PACKAGE}/{PACKAGE_VERSION}/{PACKAGE_TARGET}/archive"

func renderDownloadURL(tmpl, apiURL, pkg, version, target string) (string, error) {
	return urltemplate.RenderDownloadURL(tmpl, defaultDownloadTemplate, apiURL, pkg, version, target)
}
