// Package ogimage draws the social preview card served next to each site.
package ogimage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/benedict2310/sitedrop/pkg/model"
)

const (
	Width  = 1200
	Height = 630

	// Bump whenever Generate's output changes.
	templateVersion = "card-v1:"
	titleMaxLines   = 2
	summaryMaxLines = 3

	brandName = "sitedrop"
)

// palette is indexed by a hash of the subdomain so a site keeps its accent
// across deploys.
var palette = []string{"#2563eb", "#0d9488", "#db2777", "#ea580c", "#7c3aed", "#16a34a", "#0891b2", "#ca8a04"}

// Card is the text drawn on a preview. AccentColor is #rgb or #rrggbb;
// anything else falls back to the first palette entry.
type Card struct {
	Title       string
	Summary     string
	Address     string
	AccentColor string
}

var (
	fontLoadOnce sync.Once
	fontLoadErr  error

	boldFont    *opentype.Font
	regularFont *opentype.Font
)

// CardForView describes a deployment. The summary is the entry page's
// <title> when it differs from the site name.
func CardForView(view model.View) Card {
	d := view.Deployment
	card := Card{
		Title:       d.Name,
		Address:     "/s/" + d.Subdomain,
		AccentColor: AccentFor(d.Subdomain),
	}
	pages := 0
	for _, f := range view.Files {
		if f.Type == model.FileTypeHTML {
			pages++
			if card.Summary == "" {
				if title := PageTitle(f.Content); title != "" && !strings.EqualFold(title, d.Name) {
					card.Summary = title
				}
			}
		}
	}
	if card.Summary == "" {
		switch pages {
		case 0, 1:
			card.Summary = "A single page site"
		default:
			card.Summary = strconv.Itoa(pages) + " pages"
		}
	}
	return card
}

// AccentFor picks a stable palette color for subdomain.
func AccentFor(subdomain string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(subdomain))))
	return palette[h.Sum32()%uint32(len(palette))]
}

func Generate(c Card) ([]byte, error) {
	if err := ensureFontsLoaded(); err != nil {
		return nil, err
	}
	card := normalizeCard(c)
	accent, ok := parseHexColor(card.AccentColor)
	if !ok {
		accent, _ = parseHexColor(palette[0])
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	fillRect(img, img.Bounds(), color.RGBA{R: 250, G: 250, B: 249, A: 255})
	fillRect(img, image.Rect(0, 0, Width, 18), accent)
	fillRect(img, image.Rect(0, Height-84, Width, Height), color.RGBA{R: 28, G: 25, B: 23, A: 255})

	brandFace, err := newFace(boldFont, 30)
	if err != nil {
		return nil, fmt.Errorf("create brand font face: %w", err)
	}
	defer closeFace(brandFace)
	titleFace, err := newFace(boldFont, 72)
	if err != nil {
		return nil, fmt.Errorf("create title font face: %w", err)
	}
	defer closeFace(titleFace)
	summaryFace, err := newFace(regularFont, 36)
	if err != nil {
		return nil, fmt.Errorf("create summary font face: %w", err)
	}
	defer closeFace(summaryFace)

	ink := color.RGBA{R: 28, G: 25, B: 23, A: 255}
	nextY := drawWrappedText(img, titleFace, card.Title, 80, 190, Width-160, 88, titleMaxLines, ink)
	nextY += 24
	_ = drawWrappedText(img, summaryFace, card.Summary, 80, nextY, Width-160, 48, summaryMaxLines, color.RGBA{R: 87, G: 83, B: 78, A: 255})
	_ = drawWrappedText(img, brandFace, brandName, 80, Height-32, 300, 36, 1, accent)
	if card.Address != "" {
		addr := fitWithEllipsis(summaryFace, card.Address, Width-520)
		x := Width - 80 - textWidth(summaryFace, addr)
		_ = drawWrappedText(img, summaryFace, addr, x, Height-30, Width-520, 48, 1, color.RGBA{R: 231, G: 229, B: 228, A: 255})
	}

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// ETag is a strong validator for the card Generate would draw.
func ETag(c Card) string {
	card := normalizeCard(c)
	sum := sha256.Sum256([]byte(templateVersion + card.Title + "\x00" + card.Summary + "\x00" + card.Address + "\x00" + card.AccentColor))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func ensureFontsLoaded() error {
	fontLoadOnce.Do(func() {
		boldFont, fontLoadErr = opentype.Parse(gobold.TTF)
		if fontLoadErr != nil {
			fontLoadErr = fmt.Errorf("parse go bold font: %w", fontLoadErr)
			return
		}
		regularFont, fontLoadErr = opentype.Parse(goregular.TTF)
		if fontLoadErr != nil {
			fontLoadErr = fmt.Errorf("parse go regular font: %w", fontLoadErr)
		}
	})
	return fontLoadErr
}

func newFace(parsed *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

func closeFace(face font.Face) {
	if closer, ok := face.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func normalizeCard(c Card) Card {
	return Card{
		Title:       normalizeWhitespace(c.Title),
		Summary:     normalizeWhitespace(c.Summary),
		Address:     strings.TrimSpace(c.Address),
		AccentColor: strings.ToLower(strings.TrimSpace(c.AccentColor)),
	}
}

func normalizeWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func fillRect(img draw.Image, rect image.Rectangle, c color.Color) {
	draw.Draw(img, rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func drawWrappedText(img draw.Image, face font.Face, text string, x, y, maxWidth, lineHeight, maxLines int, c color.Color) int {
	for _, line := range wrapLines(face, text, maxWidth, maxLines) {
		drawer := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(c),
			Face: face,
			Dot:  fixed.P(x, y),
		}
		drawer.DrawString(line)
		y += lineHeight
	}
	return y
}

func wrapLines(face font.Face, text string, maxWidth, maxLines int) []string {
	text = normalizeWhitespace(text)
	if text == "" || maxLines <= 0 {
		return nil
	}

	words := strings.Split(text, " ")
	lines := make([]string, 0, maxLines)
	i := 0
	for i < len(words) && len(lines) < maxLines {
		line := words[i]
		i++
		if textWidth(face, line) > maxWidth {
			lines = append(lines, fitWithEllipsis(face, line, maxWidth))
			continue
		}
		for i < len(words) {
			candidate := line + " " + words[i]
			if textWidth(face, candidate) > maxWidth {
				break
			}
			line = candidate
			i++
		}
		lines = append(lines, line)
	}

	if i < len(words) && len(lines) > 0 {
		lines[len(lines)-1] = fitWithEllipsis(face, lines[len(lines)-1]+" ...", maxWidth)
	}
	return lines
}

func fitWithEllipsis(face font.Face, text string, maxWidth int) string {
	const ellipsis = "..."
	if textWidth(face, text) <= maxWidth {
		return text
	}
	if textWidth(face, ellipsis) > maxWidth {
		return ""
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := strings.TrimRight(string(runes), " ") + ellipsis
		if textWidth(face, candidate) <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func textWidth(face font.Face, text string) int {
	return font.MeasureString(face, text).Ceil()
}

// parseHexColor accepts #rgb or #rrggbb, with or without the '#'.
func parseHexColor(s string) (color.RGBA, bool) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}
