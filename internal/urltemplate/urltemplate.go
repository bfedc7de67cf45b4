// Package urltemplate renders a registry's {PLACEHOLDER}-style download URL
// template, shared by the first-class and compatibility registry sources.
package urltemplate

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// placeholderPattern matches the index config's {PLACEHOLDER} download URL
// tokens so they can be rewritten into Go template actions before
// execution.
var placeholderPattern = regexp.MustCompile(`\{([A-Z_]+)\}`)

// RenderDownloadURL renders an index's download URL template, substituting
// the four documented placeholders. Templates are plain Go templates under
// the hood (with sprig's function set available) so an index operator can
// post-process a placeholder, e.g. `{{.PACKAGE | lower}}`.
func RenderDownloadURL(tmpl, defaultTemplate, apiURL, pkg, version, target string) (string, error) {
	if tmpl == "" {
		tmpl = defaultTemplate
	}

	goTemplate := placeholderPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		return fmt.Sprintf("{{.%s}}", strings.Trim(token, "{}"))
	})

	t, err := template.New("download-url").Funcs(sprig.TxtFuncMap()).Parse(goTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing download url template %q: %w", tmpl, err)
	}

	data := map[string]string{
		"API_URL":         apiURL,
		"PACKAGE":         pkg,
		"PACKAGE_VERSION": version,
		"PACKAGE_TARGET":  target,
	}

	var out strings.Builder
	if err := t.Execute(&out, data); err != nil {
		return "", fmt.Errorf("rendering download url template: %w", err)
	}
	return out.String(), nil
}
