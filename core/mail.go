package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/http"
	"net/mail"
	"path"
	"strings"
	texttmpl "text/template"
	"time"
)

type (
	Attachment struct {
		Content     *bytes.Buffer // base64 encoded
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // simple text/plain, non-templated content
		Attachments []Attachment
		Categories  []string
		Headers     map[string]string

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailTemplates holds the parsed email templates: {name: {ext: *Template}}
	EmailTemplates struct {
		appName         string
		frontendBaseURL string
		text            map[string]*texttmpl.Template
		html            map[string]*htmltmpl.Template
	}

	// EmailService is any service that can send emails.
	// SendMessage blocks until the provider accepted or rejected the message.
	EmailService interface {
		SendMessage(ctx context.Context, msg *EmailMessage) error
	}
)

// DeliveryError is returned by an EmailService when the provider did not accept a message.
type DeliveryError struct {
	Err       error
	Temporary bool
}

func (err *DeliveryError) Error() string {
	kind := "permanent"
	if err.Temporary {
		kind = "temporary"
	}
	return fmt.Sprintf("%s delivery error: %v", kind, err.Err)
}

func (err *DeliveryError) Unwrap() error { return err.Err }

// RateLimitedError is returned when the provider throttles us.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (err *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by mail provider (retry after %v)", err.RetryAfter)
}

// ParseEmailTemplates parses every `<name>.txt` and `<name>.gohtml` under dir in fsys,
// each one along with the `_base` layout of the same extension.
func ParseEmailTemplates(fsys fs.FS, dir string, conf *Config) (*EmailTemplates, error) {
	tmpls := &EmailTemplates{
		appName:         conf.AppName,
		frontendBaseURL: conf.FrontendBaseURL,
		text:            make(map[string]*texttmpl.Template),
		html:            make(map[string]*htmltmpl.Template),
	}

	fps, err := fs.Glob(fsys, path.Join(dir, "*"))
	if err != nil {
		return nil, fmt.Errorf("globbing email templates: %w", err)
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)

		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(fsys, path.Join(dir, "_base.txt"), fp)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", fname, err)
			}
			if conf.Debug || conf.TestMode {
				tmpl = tmpl.Option("missingkey=error")
			}
			tmpls.text[name] = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFS(fsys, path.Join(dir, "_base.gohtml"), fp)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", fname, err)
			}
			if conf.Debug || conf.TestMode {
				tmpl = tmpl.Option("missingkey=error")
			}
			tmpls.html[name] = tmpl
		}
	}
	return tmpls, nil
}

func (m *EmailMessage) getContextData(tmpls *EmailTemplates) ContextData {
	return ContextData{
		AppName:         tmpls.appName,
		FrontendBaseURL: tmpls.frontendBaseURL,
		Data:            m.TemplateData,
	}
}

func (m *EmailMessage) renderText(tmpls *EmailTemplates) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	} else if m.TemplateName == "" || tmpls == nil {
		return nil
	}

	tmpl, ok := tmpls.text[m.TemplateName]
	if !ok {
		return nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData(tmpls)); err != nil {
		return err
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) renderHTML(tmpls *EmailTemplates) error {
	if m.TemplateName == "" || tmpls == nil {
		return nil
	}

	tmpl, ok := tmpls.html[m.TemplateName]
	if !ok {
		return nil
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData(tmpls)); err != nil {
		return err
	}
	m.HTMLContent = buff.String()
	return nil
}

// Render fills TextContent & HTMLContent from BodyStr or the named templates.
func (m *EmailMessage) Render(tmpls *EmailTemplates) error {
	if err := m.renderText(tmpls); err != nil {
		return err
	}
	return m.renderHTML(tmpls)
}

func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	at := Attachment{Filename: filename, Content: new(bytes.Buffer)}
	encoder := base64.NewEncoder(base64.StdEncoding, at.Content)
	if _, err := encoder.Write(content); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}

	if len(ct) > 0 {
		at.ContentType = ct[0]
	} else {
		at.ContentType = http.DetectContentType(content)
	}
	m.Attachments = append(m.Attachments, at)
	return nil
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return (m.TextContent != "") || (m.HTMLContent != "") }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }
