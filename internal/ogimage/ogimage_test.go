package ogimage

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/benedict2310/sitedrop/pkg/model"
)

func TestGenerateDimensions(t *testing.T) {
	pngBytes, err := Generate(Card{Title: "Portfolio", Summary: "3 pages", Address: "/s/portfolio"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if cfg.Width != Width || cfg.Height != Height {
		t.Fatalf("unexpected dimensions: got %dx%d want %dx%d", cfg.Width, cfg.Height, Width, Height)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	card := Card{Title: "Weekend recipes", Summary: "Bread, soup and pie", Address: "/s/recipes", AccentColor: "#0d9488"}
	first, err := Generate(card)
	if err != nil {
		t.Fatalf("Generate(first) error = %v", err)
	}
	second, err := Generate(card)
	if err != nil {
		t.Fatalf("Generate(second) error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected deterministic PNG bytes")
	}
}

func TestGenerateUsesAccentAndText(t *testing.T) {
	base, err := Generate(Card{Title: "T", Summary: "S"})
	if err != nil {
		t.Fatalf("Generate(base) error = %v", err)
	}
	pink, err := Generate(Card{Title: "T", Summary: "S", AccentColor: "#db2777"})
	if err != nil {
		t.Fatalf("Generate(pink) error = %v", err)
	}
	blank, err := Generate(Card{})
	if err != nil {
		t.Fatalf("Generate(blank) error = %v", err)
	}
	if bytes.Equal(base, pink) {
		t.Fatal("expected accent color to change the output")
	}
	if bytes.Equal(base, blank) {
		t.Fatal("expected text to change the output")
	}
}

func TestETag(t *testing.T) {
	a := ETag(Card{Title: "A  b", Summary: "c"})
	if a != ETag(Card{Title: "A b", Summary: " c "}) {
		t.Fatalf("expected whitespace-insensitive etag")
	}
	if a == ETag(Card{Title: "A b", Summary: "c", AccentColor: "#fff"}) {
		t.Fatalf("expected accent to change the etag")
	}
	if len(a) != 34 || a[0] != '"' {
		t.Fatalf("unexpected etag %q", a)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want [3]uint8
		ok   bool
	}{
		{in: "#fff", want: [3]uint8{255, 255, 255}, ok: true},
		{in: "0D9488", want: [3]uint8{13, 148, 136}, ok: true},
		{in: "#12345", ok: false},
		{in: "#zzzzzz", ok: false},
	}
	for _, tc := range tests {
		got, ok := parseHexColor(tc.in)
		if ok != tc.ok {
			t.Fatalf("parseHexColor(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if ok && [3]uint8{got.R, got.G, got.B} != tc.want {
			t.Fatalf("parseHexColor(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestAccentForIsStable(t *testing.T) {
	if AccentFor("Demo") != AccentFor(" demo ") {
		t.Fatalf("expected case and space insensitive accent")
	}
	if _, ok := parseHexColor(AccentFor("anything")); !ok {
		t.Fatalf("palette color must parse")
	}
}

func TestPageTitle(t *testing.T) {
	tests := map[string]string{
		"<html><head><title> My   Page </title></head></html>": "My Page",
		"<title>A &amp; B</title><title>second</title>":        "A & B",
		"<p>no title</p>": "",
	}
	for in, want := range tests {
		if got := PageTitle(in); got != want {
			t.Fatalf("PageTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCardForView(t *testing.T) {
	view := model.View{
		Deployment: model.Deployment{Name: "Portfolio", Subdomain: "portfolio"},
		Files: []model.File{
			{Name: "index.html", Type: model.FileTypeHTML, Content: "<title>Portfolio</title>"},
			{Name: "about.html", Type: model.FileTypeHTML, Content: "<title>About Ada</title>"},
		},
	}
	card := CardForView(view)
	if card.Title != "Portfolio" || card.Summary != "About Ada" || card.Address != "/s/portfolio" {
		t.Fatalf("unexpected card %#v", card)
	}
	if card.AccentColor != AccentFor("portfolio") {
		t.Fatalf("unexpected accent %q", card.AccentColor)
	}

	view.Files[1].Content = "<p>no title</p>"
	if got := CardForView(view).Summary; got != "2 pages" {
		t.Fatalf("expected page count summary, got %q", got)
	}
}
