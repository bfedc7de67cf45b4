package compat

import "github.com/pesde-pm/pesde/internal/urltemplate"

// defaultDownloadTemplate omits {PACKAGE_TARGET}: the compat format never
// records a target for a version, so there is nothing to substitute there.
const defaultDownloadTemplate = "{API_URL}/v0/packages/{PACKAGE}/{PACKAGE_VERSION}/archive"

func renderDownloadURL(tmpl, apiURL, pkg, version string) (string, error) {
	return urltemplate.RenderDownloadURL(tmpl, defaultDownloadTemplate, apiURL, pkg, version, "")
}
