package renderer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/benedict2310/sitedrop/pkg/model"
)

const IndexPath = "index.html"

// Document is one fully assembled page ready to replace the surface content.
type Document struct {
	Path     string
	Entry    string
	HTML     string
	NotFound bool
}

// ETag identifies the rendered output for conditional requests. The path is
// part of the hash so a not-found page differs per requested path.
func (d Document) ETag() string {
	h := sha256.New()
	h.Write([]byte(d.Path))
	h.Write([]byte{0})
	h.Write([]byte(d.HTML))
	return `"` + hex.EncodeToString(h.Sum(nil))[:16] + `"`
}

// HandleAllocator issues ephemeral addresses for file content. Addresses stay
// valid until the allocator's owner releases them.
type HandleAllocator interface {
	Allocate(name, contentType string, content []byte) (string, error)
}

// Render assembles the document served for requestedPath within view.
func Render(view model.View, requestedPath string, alloc HandleAllocator) (Document, error) {
	path := model.NormalizeRequestPath(requestedPath)

	entry, ok := SelectEntry(view, path)
	if !ok {
		html, err := renderNotFound(path)
		if err != nil {
			return Document{}, err
		}
		return Document{Path: path, HTML: InjectNavigation(html), NotFound: true}, nil
	}

	var (
		html string
		err  error
	)
	switch view.Shape {
	case model.ShapeLegacy:
		html = inlineLegacyAssets(view, entry.Content)
	default:
		if alloc == nil {
			return Document{}, fmt.Errorf("render %q: handle allocator is required", path)
		}
		html, err = linkAssets(view, entry.Content, alloc)
		if err != nil {
			return Document{}, fmt.Errorf("render %q: %w", path, err)
		}
	}

	return Document{Path: path, Entry: entry.Name, HTML: InjectNavigation(html)}, nil
}

// SelectEntry picks the file rendered for path. Legacy records only have a
// root page.
func SelectEntry(view model.View, path string) (model.File, bool) {
	path = model.NormalizeRequestPath(path)
	root := path == "" || path == IndexPath

	if view.Shape == model.ShapeLegacy {
		if !root {
			return model.File{}, false
		}
		return view.File(model.LegacyHTMLName)
	}

	if f, ok := view.FileNamed(path); ok && path != "" {
		return f, true
	}
	if !root {
		return model.File{}, false
	}
	for _, name := range []string{"index.html", "index.htm"} {
		if f, ok := view.FileNamed(name); ok {
			return f, true
		}
	}
	for _, f := range view.Files {
		if f.Type == model.FileTypeHTML {
			return f, true
		}
	}
	return model.File{}, false
}
