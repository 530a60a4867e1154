package validator

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/benedict2310/sitedrop/pkg/model"
	"github.com/benedict2310/sitedrop/pkg/renderer"
)

type refKind int

const (
	refStylesheet refKind = iota
	refLink
	refScript
	refAnchor
)

type reference struct {
	kind  refKind
	value string
}

func collectReferences(document string) ([]reference, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, err
	}
	var refs []reference
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			switch node.DataAtom {
			case atom.Link:
				if href, ok := getAttribute(node, "href"); ok {
					kind := refLink
					if rel, _ := getAttribute(node, "rel"); hasToken(rel, "stylesheet") {
						kind = refStylesheet
					}
					refs = append(refs, reference{kind: kind, value: href})
				}
			case atom.Script:
				if src, ok := getAttribute(node, "src"); ok {
					refs = append(refs, reference{kind: refScript, value: src})
				}
			case atom.A:
				if href, ok := getAttribute(node, "href"); ok {
					refs = append(refs, reference{kind: refAnchor, value: href})
				}
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return refs, nil
}

func checkReferences(view model.View, file string, refs []reference, cfg Config, referenced map[string]bool) []Warning {
	var out []Warning
	for _, ref := range refs {
		value := strings.TrimSpace(ref.value)
		if !renderer.IsRelativeHref(value) {
			continue
		}
		if ref.kind == refAnchor {
			if !cfg.CheckAnchors {
				continue
			}
			if _, ok := renderer.SelectEntry(view, value); !ok {
				out = append(out, newWarning(file, RuleBrokenLink, fmt.Sprintf("link to %q does not match any page and renders the not-found page", value)))
			}
			continue
		}
		// Legacy records inline their assets; references are never linked.
		if view.Shape == model.ShapeLegacy {
			continue
		}
		target, ok := view.FileNamed(value)
		if ok {
			referenced[model.NormalizePath(target.Name)] = true
		}
		switch ref.kind {
		case refStylesheet:
			if !ok {
				out = append(out, newWarning(file, RuleMissingStylesheet, fmt.Sprintf("stylesheet %q does not match any file", value)))
			} else if target.Type != model.FileTypeCSS {
				out = append(out, newWarning(file, RuleTypeMismatch, fmt.Sprintf("stylesheet %q points at a %s file", value, target.Type)))
			}
		case refScript:
			if !ok {
				out = append(out, newWarning(file, RuleMissingScript, fmt.Sprintf("script %q does not match any file", value)))
			} else if target.Type != model.FileTypeJS {
				out = append(out, newWarning(file, RuleTypeMismatch, fmt.Sprintf("script %q points at a %s file", value, target.Type)))
			}
		}
	}
	return out
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(strings.ToLower(list)) {
		if f == token {
			return true
		}
	}
	return false
}

func getAttribute(node *html.Node, key string) (string, bool) {
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val, true
		}
	}
	return "", false
}
