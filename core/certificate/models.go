package certificate

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sanaa/core"
)

// Format is a kind of rendered artifact.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
	FormatHTML Format = "html"
)

var AllFormats = []Format{FormatHTML, FormatPDF, FormatPNG}

func (f Format) Valid() bool {
	switch f {
	case FormatPDF, FormatPNG, FormatHTML:
		return true
	}
	return false
}

func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatPNG:
		return "image/png"
	default:
		return "text/html; charset=utf-8"
	}
}

// Template placeholder keys.
const (
	FieldRecipientName    = "recipientName"
	FieldTitle            = "title"
	FieldIssuedDate       = "issuedDate"
	FieldOrganizationName = "organizationName"
	FieldDescription      = "description"

	issuedDateLayout = "2006-01-02"
)

var knownFields = []string{FieldRecipientName, FieldTitle, FieldIssuedDate, FieldOrganizationName, FieldDescription}

// Fields are the placeholder values a Template is rendered with.
type Fields map[string]string

type Recipient struct {
	ID            string `json:"id" db:"id"`
	CertificateID string `json:"-" db:"certificate_id"`
	Position      int    `json:"-" db:"position"`
	Name          string `json:"name" db:"name"`
	Email         string `json:"email" db:"email"`
}

type Certificate struct {
	ID             string      `json:"id" db:"id"`
	Title          string      `json:"title" db:"title"`
	Description    string      `json:"description" db:"description"`
	IssuedDate     time.Time   `json:"issued_date" db:"issued_date"`
	IssuedFrom     string      `json:"issued_from" db:"issued_from"`
	OrganizationID string      `json:"organization_id" db:"organization_id"`
	TemplateID     string      `json:"template_id" db:"template_id"`
	Published      bool        `json:"published" db:"published"`
	SecurePdfPath  null.String `json:"secure_pdf_path" db:"secure_pdf_path"`
	SecurePngPath  null.String `json:"secure_png_path" db:"secure_png_path"`
	SecureHTMLPath null.String `json:"secure_html_path" db:"secure_html_path"`
	LinkSalt       string      `json:"-" db:"link_salt"`
	CreatedBy      string      `json:"created_by" db:"created_by"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"` // UTC
	Recipients     []Recipient `json:"recipients" db:"-"`
}

func (c Certificate) ArtifactPath(f Format) null.String {
	switch f {
	case FormatPDF:
		return c.SecurePdfPath
	case FormatPNG:
		return c.SecurePngPath
	case FormatHTML:
		return c.SecureHTMLPath
	}
	return null.String{}
}

func (c *Certificate) SetArtifactPath(f Format, path string) {
	switch f {
	case FormatPDF:
		c.SecurePdfPath = null.StringFrom(path)
	case FormatPNG:
		c.SecurePngPath = null.StringFrom(path)
	case FormatHTML:
		c.SecureHTMLPath = null.StringFrom(path)
	}
}

func (c Certificate) Recipient(id string) (Recipient, bool) {
	for _, r := range c.Recipients {
		if r.ID == id {
			return r, true
		}
	}
	return Recipient{}, false
}

// Fields returns the placeholder values of r's copy of the certificate.
func (c Certificate) Fields(r Recipient) Fields {
	return Fields{
		FieldRecipientName:    r.Name,
		FieldTitle:            c.Title,
		FieldIssuedDate:       c.IssuedDate.Format(issuedDateLayout),
		FieldOrganizationName: c.IssuedFrom,
		FieldDescription:      c.Description,
	}
}

// restrictTo returns a copy of c that only lists recipient r.
func (c Certificate) restrictTo(r Recipient) Certificate {
	c.Recipients = []Recipient{r}
	return c
}

type NewRecipient struct {
	Name  string `json:"name" validate:"notblank"`
	Email string `json:"email" validate:"required,email"`
}

// NewCertificate contains information needed to create a new Certificate.
type NewCertificate struct {
	Title       string         `json:"title" validate:"notblank"`
	Description string         `json:"description"`
	IssuedDate  string         `json:"issued_date" validate:"required,datetime=2006-01-02"`
	IssuedFrom  string         `json:"issued_from" validate:"notblank"`
	TemplateID  string         `json:"template_id" validate:"required"`
	Recipients  []NewRecipient `json:"recipients" validate:"required,min=1,dive"`
}

func (nc *NewCertificate) Clean() {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.IssuedDate = core.CleanString(nc.IssuedDate)
	nc.IssuedFrom = core.CleanString(nc.IssuedFrom)
	nc.TemplateID = core.CleanString(nc.TemplateID)
	for i := range nc.Recipients {
		nc.Recipients[i].Name = core.CleanString(nc.Recipients[i].Name)
		nc.Recipients[i].Email = core.CleanString(nc.Recipients[i].Email)
	}
}

type QueryFilter struct {
	IssuedFrom string `query:"issued_from"`
	Published  *bool  `query:"published"`
}

func (f *QueryFilter) Clean() {
	f.IssuedFrom = core.CleanString(f.IssuedFrom)
}
