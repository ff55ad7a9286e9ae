package certificate

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/sanaa/core"
)

var testTemplate = Template{
	ID: "classic",
	Layout: `<div class="certificate">
  <h1>{{.title}}</h1>
  <h2>{{.recipientName}}</h2>
  {{with .description}}<p>{{.}}</p>{{end}}
  <p>Issued by {{.organizationName}}</p>
  <p>{{.issuedDate}}</p>
</div>`,
	RequiredFields: []string{FieldRecipientName, FieldTitle, FieldIssuedDate, FieldOrganizationName},
}

func testFields() Fields {
	return Fields{
		FieldRecipientName:    "Ada Lovelace",
		FieldTitle:            "Go Workshop",
		FieldIssuedDate:       "2024-05-17",
		FieldOrganizationName: "OrgA",
	}
}

func TestRenderer_Render(t *testing.T) {
	r := NewRenderer()

	t.Run("fields are substituted", func(t *testing.T) {
		doc, err := r.Render(testTemplate, testFields())
		if assert.NoError(t, err) {
			assert.Contains(t, string(doc), "<h2>Ada Lovelace</h2>")
			assert.Contains(t, string(doc), "Issued by OrgA")
			assert.NotContains(t, string(doc), "<p></p>")
		}
	})

	t.Run("values are escaped", func(t *testing.T) {
		fields := testFields()
		fields[FieldRecipientName] = "<script>alert(1)</script>"
		doc, err := r.Render(testTemplate, fields)
		if assert.NoError(t, err) {
			assert.NotContains(t, string(doc), "<script>")
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		fields := testFields()
		delete(fields, FieldOrganizationName)
		fields[FieldTitle] = "   "

		_, err := r.Render(testTemplate, fields)
		var verr *core.ValidationError
		if assert.True(t, errors.As(err, &verr), "%v", err) {
			var names []string
			for _, f := range verr.Fields {
				names = append(names, f.Field)
			}
			assert.ElementsMatch(t, []string{FieldTitle, FieldOrganizationName}, names)
		}
	})

	t.Run("broken layout", func(t *testing.T) {
		tmpl := testTemplate
		tmpl.Layout = "<h1>{{.title</h1>"
		_, err := r.Render(tmpl, testFields())
		var terr *TemplateError
		if assert.True(t, errors.As(err, &terr), "%v", err) {
			assert.Equal(t, "classic", terr.TemplateID)
		}
	})

	t.Run("unknown placeholder", func(t *testing.T) {
		tmpl := testTemplate
		tmpl.Layout = "<h1>{{.nickname}}</h1>"
		_, err := r.Render(tmpl, testFields())
		var terr *TemplateError
		assert.True(t, errors.As(err, &terr), "%v", err)
	})

	t.Run("deterministic", func(t *testing.T) {
		d1, err1 := r.Render(testTemplate, testFields())
		d2, err2 := r.Render(testTemplate, testFields())
		assert.NoError(t, err1)
		assert.NoError(t, err2)
		assert.Equal(t, d1, d2)
	})
}

func Test_textBlocks(t *testing.T) {
	doc := HTMLDocument(`<html><head><title>x</title><style>h1{}</style></head>
<body><h1>Go   Workshop</h1><h2>Ada</h2><p>Issued by <b>OrgA</b></p><script>var a;</script></body></html>`)

	blocks, err := textBlocks(doc)
	if assert.NoError(t, err) {
		assert.Equal(t, []textBlock{
			{level: 1, text: "Go Workshop"},
			{level: 2, text: "Ada"},
			{level: 0, text: "Issued by OrgA"},
		}, blocks)
	}
}

func TestRenderer_ToPDF(t *testing.T) {
	r := NewRenderer()
	doc, err := r.Render(testTemplate, testFields())
	if !assert.NoError(t, err) {
		return
	}

	pdf1, err := r.ToPDF(doc)
	if !assert.NoError(t, err) {
		return
	}
	assert.True(t, bytes.HasPrefix(pdf1, []byte("%PDF-")))
	assert.Contains(t, string(pdf1), pdfText("Ada Lovelace"))
	assert.Contains(t, string(pdf1), pdfText("Go Workshop"))

	pdf2, err := r.ToPDF(doc)
	if assert.NoError(t, err) {
		assert.Equal(t, pdf1, pdf2)
	}
}

func TestRenderer_ToPNG(t *testing.T) {
	r := NewRenderer()
	doc, err := r.Render(testTemplate, testFields())
	if !assert.NoError(t, err) {
		return
	}

	img1, err := r.ToPNG(doc)
	if !assert.NoError(t, err) {
		return
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(img1))
	if assert.NoError(t, err) {
		assert.Equal(t, pngWidth, cfg.Width)
		assert.Equal(t, pngHeight, cfg.Height)
	}

	img2, err := r.ToPNG(doc)
	if assert.NoError(t, err) {
		assert.Equal(t, img1, img2)
	}
}

func TestRenderer_nonLatinNames(t *testing.T) {
	r := NewRenderer()
	fields := testFields()
	fields[FieldRecipientName] = "Łukasz Dvořák 李雷"
	doc, err := r.Render(testTemplate, fields)
	if !assert.NoError(t, err) {
		return
	}

	pdf1, err := r.ToPDF(doc)
	if assert.NoError(t, err) {
		assert.Contains(t, string(pdf1), pdfText("Łukasz Dvořák 李雷"))
		pdf2, err := r.ToPDF(doc)
		if assert.NoError(t, err) {
			assert.Equal(t, pdf1, pdf2)
		}
	}

	img1, err := r.ToPNG(doc)
	if assert.NoError(t, err) {
		fields[FieldRecipientName] = "??????"
		placeholder, err := r.Render(testTemplate, fields)
		if assert.NoError(t, err) {
			img, err := r.ToPNG(placeholder)
			if assert.NoError(t, err) {
				assert.NotEqual(t, img, img1)
			}
		}
		img2, err := r.ToPNG(doc)
		if assert.NoError(t, err) {
			assert.Equal(t, img1, img2)
		}
	}
}

func Test_pdfSafe(t *testing.T) {
	assert.Equal(t, "Ada \uFFFD", pdfSafe("Ada 🎓"))
	assert.Equal(t, "Łukasz 李雷", pdfSafe("Łukasz 李雷"))
}

func Test_wrapText(t *testing.T) {
	maxRunes := func(n int) func(string) bool {
		return func(s string) bool { return utf8.RuneCountInString(s) <= n }
	}
	assert.Equal(t, []string{"Certificate of", "Achievement"}, wrapText("Certificate of Achievement", maxRunes(14)))
	assert.Equal(t, []string{"abcde", "fgh"}, wrapText("abcdefgh", maxRunes(5)))
	assert.Equal(t, []string{"李雷", "李"}, wrapText("李雷李", maxRunes(2)))
	assert.Equal(t, []string{"x"}, wrapText("x", maxRunes(0)))
	assert.Nil(t, wrapText("   ", maxRunes(5)))
}

// pdfText returns s the way fpdf writes it in an uncompressed content stream.
func pdfText(s string) string {
	var b strings.Builder
	for _, u := range utf16.Encode([]rune(s)) {
		b.WriteByte(byte(u >> 8))
		b.WriteByte(byte(u))
	}
	return strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`, "\r", `\r`).Replace(b.String())
}
