package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeMultiFileUsesFilesVerbatim(t *testing.T) {
	d := Deployment{
		ID:   "d1",
		HTML: "<p>ignored</p>",
		Files: []File{
			{Name: "about.html", Content: "<p>About</p>", Type: FileTypeHTML},
			{Name: "index.html", Content: "<p>Home</p>", Type: FileTypeHTML},
			{Name: "app.css", Content: "body{}", Type: FileTypeCSS},
		},
	}
	view, err := Normalize(d)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if view.Shape != ShapeMultiFile {
		t.Fatalf("expected multi-file shape, got %s", view.Shape)
	}
	if diff := cmp.Diff(d.Files, view.Files); diff != "" {
		t.Fatalf("files changed (-want +got):\n%s", diff)
	}
}

func TestNormalizeLegacySynthesizesFiles(t *testing.T) {
	view, err := Normalize(Deployment{HTML: "<body>Hi</body>", CSS: "body{color:red}"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if view.Shape != ShapeLegacy {
		t.Fatalf("expected legacy shape, got %s", view.Shape)
	}
	want := []File{
		{Name: "index.html", Content: "<body>Hi</body>", Type: FileTypeHTML},
		{Name: "style.css", Content: "body{color:red}", Type: FileTypeCSS},
	}
	if diff := cmp.Diff(want, view.Files); diff != "" {
		t.Fatalf("unexpected files (-want +got):\n%s", diff)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	records := []Deployment{
		{HTML: "<h1>x</h1>", CSS: "a{}", JS: "go()"},
		{HTML: "<h1>x</h1>"},
		{Files: []File{{Name: "index.html", Content: "x", Type: FileTypeHTML}, {Name: "a.js", Content: "1", Type: FileTypeJS}}},
	}
	for _, rec := range records {
		first, err := Normalize(rec)
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		second, err := Normalize(first.Materialize())
		if err != nil {
			t.Fatalf("Normalize(Materialize()) error = %v", err)
		}
		if diff := cmp.Diff(first.Files, second.Files); diff != "" {
			t.Fatalf("normalize not idempotent (-first +second):\n%s", diff)
		}
		if first.Shape != second.Shape {
			t.Fatalf("shape changed: %s -> %s", first.Shape, second.Shape)
		}
	}
}

func TestNormalizeRejectsRecordsWithoutEntryPoint(t *testing.T) {
	cases := []Deployment{
		{},
		{CSS: "body{}"},
		{Files: []File{{Name: "a.css", Content: "x", Type: FileTypeCSS}}},
	}
	for _, rec := range cases {
		if _, err := Normalize(rec); !errors.Is(err, ErrNoEntryPoint) {
			t.Fatalf("expected ErrNoEntryPoint for %#v, got %v", rec, err)
		}
	}
}

func TestDeploymentUnmarshalAcceptsLegacyCodeField(t *testing.T) {
	var d Deployment
	raw := `{"id":"abc","subdomain":"demo","code":"<h1>old</h1>","css":"h1{}","visitors":7,"userId":"u"}`
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.HTML != "<h1>old</h1>" {
		t.Fatalf("expected code to populate html, got %q", d.HTML)
	}
	if d.VisitorCount != 7 {
		t.Fatalf("expected visitors to populate visitorCount, got %d", d.VisitorCount)
	}
	if d.OwnerID != "u" {
		t.Fatalf("expected userId to populate ownerId, got %q", d.OwnerID)
	}
}

func TestPublicStripsOwner(t *testing.T) {
	d := Deployment{ID: "x", OwnerID: "owner-1"}
	b, err := json.Marshal(d.Public())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["ownerId"]; ok {
		t.Fatalf("expected ownerId to be omitted, got %s", b)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"./about.html":  "about.html",
		"/about.html":   "about.html",
		"//x.css":       "x.css",
		".//a/b.js":     "a/b.js",
		"":              "",
		"index.html":    "index.html",
		" /index.html ": "index.html",
	}
	for in, want := range tests {
		if got := NormalizePath(in); got != want {
			t.Fatalf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeRequestPath(t *testing.T) {
	tests := map[string]string{
		"about.html#team":  "about.html",
		"about.html?x=1":   "about.html",
		"./about.html?x#y": "about.html",
		"/docs/a.html#q?z": "docs/a.html",
		"?ref=home":        "",
		"#top":             "",
		" /index.html ":    "index.html",
		"contact.html":     "contact.html",
	}
	for in, want := range tests {
		if got := NormalizeRequestPath(in); got != want {
			t.Fatalf("NormalizeRequestPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateFiles(t *testing.T) {
	if err := ValidateFiles([]File{{Name: "index.html", Type: FileTypeHTML}, {Name: "./index.html", Type: FileTypeHTML}}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if err := ValidateFiles([]File{{Name: "a.txt", Type: "txt"}}); err == nil {
		t.Fatalf("expected invalid type error")
	}
	if err := ValidateFiles([]File{{Name: "../etc.html", Type: FileTypeHTML}}); err == nil {
		t.Fatalf("expected traversal error")
	}
	if err := ValidateFiles([]File{{Name: "index.html", Type: FileTypeHTML}, {Name: "a.css", Type: FileTypeCSS}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInferFileType(t *testing.T) {
	if InferFileType("style.CSS") != FileTypeCSS || InferFileType("app.js") != FileTypeJS || InferFileType("about") != FileTypeHTML {
		t.Fatalf("unexpected inferred types")
	}
}
