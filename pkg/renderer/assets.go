package renderer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/benedict2310/sitedrop/pkg/model"
)

const (
	ContentTypeCSS = "text/css; charset=utf-8"
	ContentTypeJS  = "text/javascript; charset=utf-8"
)

var (
	// Quoted values may contain '>' and attribute-like text; they are consumed
	// whole so only real attribute names are ever inspected.
	linkTagPattern   = regexp.MustCompile(`(?is)<link\b(?:[^>"']|"[^"]*"|'[^']*')*>`)
	scriptTagPattern = regexp.MustCompile(`(?is)<script\b(?:[^>"']|"[^"]*"|'[^']*')*>`)
	tagNamePattern   = regexp.MustCompile(`^<[a-zA-Z][a-zA-Z0-9]*`)
	attrPattern      = regexp.MustCompile(`(?s)([^\s"'>/=]+)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+)))?`)
	externalRefRe    = regexp.MustCompile(`^(?:[a-zA-Z][a-zA-Z0-9+.\-]*:|//)`)

	headCloseRe = regexp.MustCompile(`(?i)</head\s*>`)
	htmlOpenRe  = regexp.MustCompile(`(?is)<html\b[^>]*>`)
	bodyCloseRe = regexp.MustCompile(`(?i)</body\s*>`)
)

// ContentType returns the MIME type a handle for f is served with.
func ContentType(t model.FileType) string {
	switch t {
	case model.FileTypeCSS:
		return ContentTypeCSS
	case model.FileTypeJS:
		return ContentTypeJS
	default:
		return "text/html; charset=utf-8"
	}
}

// linkAssets allocates one handle per non-HTML file and substitutes handle
// addresses for matching <link href> and <script src> values. Values that
// match no file are left as written.
func linkAssets(view model.View, document string, alloc HandleAllocator) (string, error) {
	handles := make(map[string]string, len(view.Files))
	for _, f := range view.Files {
		if f.Type == model.FileTypeHTML {
			continue
		}
		addr, err := alloc.Allocate(f.Name, ContentType(f.Type), []byte(f.Content))
		if err != nil {
			return "", fmt.Errorf("allocate handle for %q: %w", f.Name, err)
		}
		handles[model.NormalizePath(f.Name)] = addr
	}
	return RewriteReferences(document, handles), nil
}

// RewriteReferences replaces link href and script src values found in
// handles (keyed by normalized file name) with the mapped address.
func RewriteReferences(document string, handles map[string]string) string {
	if len(handles) == 0 {
		return document
	}
	document = linkTagPattern.ReplaceAllStringFunc(document, func(tag string) string {
		return rewriteAttr(tag, "href", handles)
	})
	return scriptTagPattern.ReplaceAllStringFunc(document, func(tag string) string {
		return rewriteAttr(tag, "src", handles)
	})
}

// rewriteAttr walks the attributes of tag in order and rewrites the first one
// called name. Later duplicates are ignored, as browsers do.
func rewriteAttr(tag, name string, handles map[string]string) string {
	nameEnd := tagNamePattern.FindStringIndex(tag)
	if nameEnd == nil {
		return tag
	}
	offset := nameEnd[1]
	for _, loc := range attrPattern.FindAllStringSubmatchIndex(tag[offset:], -1) {
		if strings.EqualFold(tag[offset+loc[2]:offset+loc[3]], name) {
			return rewriteValue(tag, offset, loc, handles)
		}
	}
	return tag
}

func rewriteValue(tag string, offset int, loc []int, handles map[string]string) string {
	for group := 2; group <= 4; group++ {
		start, end := loc[2*group], loc[2*group+1]
		if start < 0 {
			continue
		}
		start, end = start+offset, end+offset
		value := tag[start:end]
		if externalRefRe.MatchString(strings.TrimSpace(value)) {
			return tag
		}
		addr, ok := handles[model.NormalizePath(value)]
		if !ok {
			return tag
		}
		return tag[:start] + addr + tag[end:]
	}
	return tag
}

// inlineLegacyAssets embeds the legacy stylesheet and script directly.
func inlineLegacyAssets(view model.View, document string) string {
	if css, ok := view.File(model.LegacyCSSName); ok && css.Content != "" {
		document = injectHead(document, "<style>\n"+css.Content+"\n</style>\n")
	}
	if js, ok := view.File(model.LegacyJSName); ok && js.Content != "" {
		document = injectBeforeBodyEnd(document, "<script>\n"+js.Content+"\n</script>\n")
	}
	return document
}

func injectHead(document, snippet string) string {
	if loc := headCloseRe.FindStringIndex(document); loc != nil {
		return document[:loc[0]] + snippet + document[loc[0]:]
	}
	head := "<head>\n" + snippet + "</head>\n"
	if loc := htmlOpenRe.FindStringIndex(document); loc != nil {
		return document[:loc[1]] + head + document[loc[1]:]
	}
	return head + document
}

func injectBeforeBodyEnd(document, snippet string) string {
	all := bodyCloseRe.FindAllStringIndex(document, -1)
	if len(all) == 0 {
		return document + snippet
	}
	at := all[len(all)-1][0]
	return document[:at] + snippet + document[at:]
}
