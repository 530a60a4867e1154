package model

import "errors"

const (
	LegacyHTMLName = "index.html"
	LegacyCSSName  = "style.css"
	LegacyJSName   = "script.js"
)

// ErrNoEntryPoint marks a record with nothing renderable.
var ErrNoEntryPoint = errors.New("deployment has no html entry point")

type Shape int

const (
	ShapeMultiFile Shape = iota
	ShapeLegacy
)

func (s Shape) String() string {
	if s == ShapeLegacy {
		return "legacy"
	}
	return "multi-file"
}

// View is a deployment whose content has been resolved into a file set.
// Downstream code reads Files only; Shape selects the linking strategy.
type View struct {
	Deployment Deployment
	Shape      Shape
	Files      []File
}

// Normalize resolves the content shape of d.
func Normalize(d Deployment) (View, error) {
	view := View{Deployment: d}
	if d.HasFiles() {
		view.Shape = ShapeMultiFile
		view.Files = append([]File(nil), d.Files...)
	} else {
		view.Shape = ShapeLegacy
		if d.HTML != "" {
			view.Files = append(view.Files, File{Name: LegacyHTMLName, Content: d.HTML, Type: FileTypeHTML})
		}
		if d.CSS != "" {
			view.Files = append(view.Files, File{Name: LegacyCSSName, Content: d.CSS, Type: FileTypeCSS})
		}
		if d.JS != "" {
			view.Files = append(view.Files, File{Name: LegacyJSName, Content: d.JS, Type: FileTypeJS})
		}
	}
	if !hasHTML(view.Files) {
		return View{}, ErrNoEntryPoint
	}
	return view, nil
}

// Materialize turns the view back into a stored record of the same shape.
func (v View) Materialize() Deployment {
	d := v.Deployment
	d.HTML, d.CSS, d.JS, d.Files = "", "", "", nil
	if v.Shape == ShapeMultiFile {
		d.Files = append([]File(nil), v.Files...)
		return d
	}
	for _, f := range v.Files {
		switch f.Name {
		case LegacyHTMLName:
			d.HTML = f.Content
		case LegacyCSSName:
			d.CSS = f.Content
		case LegacyJSName:
			d.JS = f.Content
		}
	}
	return d
}

// File returns the file with the exact name.
func (v View) File(name string) (File, bool) {
	for _, f := range v.Files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// FileNamed is File with name normalization applied to both sides.
func (v View) FileNamed(name string) (File, bool) {
	name = NormalizePath(name)
	for _, f := range v.Files {
		if NormalizePath(f.Name) == name {
			return f, true
		}
	}
	return File{}, false
}

func hasHTML(files []File) bool {
	for _, f := range files {
		if f.Type == FileTypeHTML {
			return true
		}
	}
	return false
}
