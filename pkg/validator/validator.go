// Package validator lints deployment files. Findings are warnings: nothing
// here blocks a deploy.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benedict2310/sitedrop/pkg/model"
)

const (
	SeverityWarning = "warning"

	RuleParse             = "parse-html"
	RuleMissingStylesheet = "missing-stylesheet"
	RuleMissingScript     = "missing-script"
	RuleBrokenLink        = "broken-link"
	RuleUnreferencedAsset = "unreferenced-asset"
	RuleTypeMismatch      = "asset-type-mismatch"
)

type Warning struct {
	File     string `json:"file"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func (w Warning) Error() string {
	return fmt.Sprintf("[%s] %s (%s): %s", w.Severity, w.File, w.Rule, w.Message)
}

// LintFiles lints a multi-file set with the default rules.
func LintFiles(files []model.File) []Warning {
	return LintView(model.View{Shape: model.ShapeMultiFile, Files: files}, DefaultConfig())
}

// LintView lints every html file of view. Reference checks use the same
// matching the renderer applies, so a warning means the reference will not be
// linked or the page will not be found.
func LintView(view model.View, cfg Config) []Warning {
	referenced := map[string]bool{}
	var out []Warning

	htmlFiles := make([]model.File, 0, len(view.Files))
	for _, f := range view.Files {
		if f.Type == model.FileTypeHTML {
			htmlFiles = append(htmlFiles, f)
		}
	}
	sort.SliceStable(htmlFiles, func(i, j int) bool { return htmlFiles[i].Name < htmlFiles[j].Name })

	for _, f := range htmlFiles {
		refs, err := collectReferences(f.Content)
		if err != nil {
			out = append(out, newWarning(f.Name, RuleParse, fmt.Sprintf("parse HTML failed: %v", err)))
			continue
		}
		out = append(out, checkReferences(view, f.Name, refs, cfg, referenced)...)
	}

	if cfg.ReportUnreferenced && view.Shape == model.ShapeMultiFile {
		for _, f := range view.Files {
			if f.Type == model.FileTypeHTML {
				continue
			}
			if !referenced[model.NormalizePath(f.Name)] {
				out = append(out, newWarning(f.Name, RuleUnreferencedAsset, "no html file links to this file; it is never loaded"))
			}
		}
	}
	return out
}

func FormatWarnings(warnings []Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	lines := make([]string, 0, len(warnings))
	for _, w := range warnings {
		lines = append(lines, w.Error())
	}
	return strings.Join(lines, "\n")
}

func newWarning(file, rule, message string) Warning {
	return Warning{
		File:     file,
		Rule:     rule,
		Severity: SeverityWarning,
		Message:  message,
	}
}
