package profile

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

//go:embed templates/*.template
var templatesFS embed.FS

// Template names renderable with RenderTemplate.
const (
	TemplateRootCA       = "rootca.cnf.template"
	TemplateIntermediate = "intermediate.cnf.template"
	TemplateCSR          = "csr.cnf.template"
)

var placeholderRe = regexp.MustCompile(`\{\{([A-Z0-9_]+)\}\}`)

// Render substitutes {{VAR}} placeholders in content. Every placeholder must
// have a value; an unresolved placeholder is an error rather than silently
// leaking into a config file.
func Render(content string, vars map[string]string) (string, error) {
	for key, value := range vars {
		content = strings.ReplaceAll(content, "{{"+key+"}}", value)
	}
	if m := placeholderRe.FindString(content); m != "" {
		return "", fmt.Errorf("unresolved template variable %s", m)
	}
	return content, nil
}

// RenderTemplate renders one of the embedded configuration templates.
func RenderTemplate(name string, vars map[string]string) (string, error) {
	data, err := templatesFS.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("unknown template %q", name)
	}
	return Render(string(data), vars)
}

// RenderTemplateFile renders an embedded template into a file.
func RenderTemplateFile(name, outPath string, vars map[string]string) error {
	content, err := RenderTemplate(name, vars)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(content), 0644)
}
