package certificate

import (
	"bytes"
	"fmt"
	"html/template"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/trezcool/sanaa/core"
)

// HTMLDocument is a rendered certificate.
type HTMLDocument []byte

var (
	// pinned so that a given build always produces the same PDF bytes
	pdfCreationDate = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

	pngWidth, pngHeight = 1123, 794 // A4 landscape at 96 DPI
	pngMargin           = 40
	pngInk              = color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}
	pngFrame            = color.RGBA{R: 0x8a, G: 0x6d, B: 0x1f, A: 0xff}
)

// Renderer turns templates into HTML documents and rasterizes them.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render executes tmpl with fields. Every required field of tmpl must be present and not blank.
func (r *Renderer) Render(tmpl Template, fields Fields) (HTMLDocument, error) {
	var missing []core.FieldError
	for _, key := range tmpl.RequiredFields {
		if strings.TrimSpace(fields[key]) == "" {
			missing = append(missing, core.FieldError{Field: key, Error: "this field is required"})
		}
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, m := range missing {
			names = append(names, m.Field)
		}
		return nil, core.NewValidationError(
			fmt.Errorf("missing required fields: %s", strings.Join(names, ", ")),
			missing...,
		)
	}

	t, err := template.New(tmpl.ID).Option("missingkey=error").Parse(tmpl.Layout)
	if err != nil {
		return nil, &TemplateError{TemplateID: tmpl.ID, Err: err}
	}

	data := make(map[string]string, len(knownFields)+len(fields))
	for _, key := range knownFields {
		data[key] = ""
	}
	for k, v := range fields {
		data[k] = v
	}

	var buf bytes.Buffer
	if err = t.Execute(&buf, data); err != nil {
		return nil, &TemplateError{TemplateID: tmpl.ID, Err: err}
	}
	return buf.Bytes(), nil
}

type textBlock struct {
	level int // 1-3 for headings, 0 for body text
	text  string
}

// textBlocks extracts the visible text of doc, one block per block-level element.
func textBlocks(doc HTMLDocument) ([]textBlock, error) {
	var (
		blocks  []textBlock
		current strings.Builder
		level   int
		skip    int
	)
	flush := func() {
		if txt := strings.Join(strings.Fields(current.String()), " "); txt != "" {
			blocks = append(blocks, textBlock{level: level, text: txt})
		}
		current.Reset()
		level = 0
	}

	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			break
		}

		tok := z.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			switch tok.DataAtom {
			case atom.Head, atom.Script, atom.Style, atom.Title:
				if tt == html.StartTagToken {
					skip++
				}
			case atom.H1, atom.H2, atom.H3:
				flush()
				level = int(tok.Data[1] - '0')
			case atom.H4, atom.H5, atom.H6, atom.P, atom.Div, atom.Br, atom.Li, atom.Tr, atom.Section, atom.Footer, atom.Header:
				flush()
			}
		case html.EndTagToken:
			switch tok.DataAtom {
			case atom.Head, atom.Script, atom.Style, atom.Title:
				if skip > 0 {
					skip--
				}
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.P, atom.Div, atom.Li, atom.Tr, atom.Section, atom.Footer, atom.Header:
				flush()
			}
		case html.TextToken:
			if skip == 0 {
				current.WriteString(tok.Data)
				current.WriteByte(' ')
			}
		}
	}
	flush()
	return blocks, nil
}

// goFonts holds the parsed Go font faces used by the PNG rasterizer.
var goFonts struct {
	once                  sync.Once
	regular, bold, italic *opentype.Font
	err                   error
}

func loadGoFonts() error {
	goFonts.once.Do(func() {
		parse := func(ttf []byte) *opentype.Font {
			if goFonts.err != nil {
				return nil
			}
			f, err := opentype.Parse(ttf)
			if err != nil {
				goFonts.err = errors.Wrap(err, "parsing go font")
			}
			return f
		}
		goFonts.regular = parse(goregular.TTF)
		goFonts.bold = parse(gobold.TTF)
		goFonts.italic = parse(goitalic.TTF)
	})
	return goFonts.err
}

// pdfSafe replaces runes the PDF font tables cannot address.
func pdfSafe(text string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFFFF {
			return utf8.RuneError
		}
		return r
	}, text)
}

// ToPDF lays out the text of doc on an A4 landscape page.
// Content streams are left uncompressed so field values appear verbatim (UTF-16BE encoded).
func (r *Renderer) ToPDF(doc HTMLDocument) ([]byte, error) {
	blocks, err := textBlocks(doc)
	if err != nil {
		return nil, &RenderError{Format: FormatPDF, Err: errors.Wrap(err, "parsing html")}
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetCreationDate(pdfCreationDate)
	pdf.SetModificationDate(pdfCreationDate)
	pdf.SetCatalogSort(true)
	pdf.SetAutoPageBreak(false, 10)
	pdf.AddUTF8FontFromBytes("Go", "", goregular.TTF)
	pdf.AddUTF8FontFromBytes("Go", "B", gobold.TTF)
	pdf.AddUTF8FontFromBytes("Go", "I", goitalic.TTF)

	pdf.AddPage()
	w, h := pdf.GetPageSize()
	pdf.SetDrawColor(int(pngFrame.R), int(pngFrame.G), int(pngFrame.B))
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, w-20, h-20, "D")

	pdf.SetTextColor(int(pngInk.R), int(pngInk.G), int(pngInk.B))
	pdf.SetY(40)
	for _, b := range blocks {
		style, size := blockStyle(b.level)
		pdf.SetFont("Go", style, size)
		lineHeight := size * 0.3528 * 1.4
		pdf.MultiCell(0, lineHeight, pdfSafe(b.text), "", "C", false)
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err = pdf.Output(&buf); err != nil {
		return nil, &RenderError{Format: FormatPDF, Err: err}
	}
	return buf.Bytes(), nil
}

// blockStyle returns the font style and point size of a text block.
func blockStyle(level int) (string, float64) {
	switch level {
	case 1:
		return "B", 30
	case 2:
		return "B", 22
	case 3:
		return "I", 16
	}
	return "", 14
}

func pngFace(level int) (font.Face, error) {
	if err := loadGoFonts(); err != nil {
		return nil, err
	}
	style, size := blockStyle(level)
	f := goFonts.regular
	switch style {
	case "B":
		f = goFonts.bold
	case "I":
		f = goFonts.italic
	}
	// points to pixels at 96 DPI
	return opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 96, Hinting: font.HintingFull})
}

// ToPNG draws the text of doc on an A4 landscape canvas.
func (r *Renderer) ToPNG(doc HTMLDocument) ([]byte, error) {
	blocks, err := textBlocks(doc)
	if err != nil {
		return nil, &RenderError{Format: FormatPNG, Err: errors.Wrap(err, "parsing html")}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, pngWidth, pngHeight))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	drawFrame(canvas, 16, 4)

	type line struct {
		text string
		face font.Face
	}
	var lines []line
	faces := make(map[int]font.Face, 4)
	defer func() {
		for _, face := range faces {
			_ = face.Close()
		}
	}()
	maxWidth := fixed.I(pngWidth - 2*pngMargin)
	for _, b := range blocks {
		face, ok := faces[b.level]
		if !ok {
			if face, err = pngFace(b.level); err != nil {
				return nil, &RenderError{Format: FormatPNG, Err: err}
			}
			faces[b.level] = face
		}
		fits := func(s string) bool { return font.MeasureString(face, s) <= maxWidth }
		for _, txt := range wrapText(b.text, fits) {
			lines = append(lines, line{text: txt, face: face})
		}
	}

	const gap = 12
	total := 0
	for _, l := range lines {
		total += l.face.Metrics().Height.Ceil() + gap
	}
	y := (pngHeight - total) / 2
	if y < pngMargin {
		y = pngMargin
	}

	for _, l := range lines {
		m := l.face.Metrics()
		width := font.MeasureString(l.face, l.text)
		d := font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(pngInk),
			Face: l.face,
			Dot:  fixed.Point26_6{X: (fixed.I(pngWidth) - width) / 2, Y: fixed.I(y) + m.Ascent},
		}
		d.DrawString(l.text)
		y += m.Height.Ceil() + gap
	}

	var buf bytes.Buffer
	if err = png.Encode(&buf, canvas); err != nil {
		return nil, &RenderError{Format: FormatPNG, Err: err}
	}
	return buf.Bytes(), nil
}

func drawFrame(img *image.RGBA, inset, thickness int) {
	b := img.Bounds().Inset(inset)
	src := image.NewUniform(pngFrame)
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+thickness), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Max.Y-thickness, b.Max.X, b.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+thickness, b.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Max.X-thickness, b.Min.Y, b.Max.X, b.Max.Y), src, image.Point{}, draw.Src)
}

// wrapText splits text in lines accepted by fits, on word boundaries when possible.
// Words that never fit are broken between runes.
func wrapText(text string, fits func(string) bool) []string {
	var (
		lines []string
		curr  string
	)
	for _, word := range strings.Fields(text) {
		if curr != "" {
			if cand := curr + " " + word; fits(cand) {
				curr = cand
				continue
			}
			lines = append(lines, curr)
			curr = ""
		}
		for !fits(word) {
			w := []rune(word)
			n := 1
			for n < len(w) && fits(string(w[:n+1])) {
				n++
			}
			if n >= len(w) {
				break
			}
			lines = append(lines, string(w[:n]))
			word = string(w[n:])
		}
		curr = word
	}
	if curr != "" {
		lines = append(lines, curr)
	}
	return lines
}
