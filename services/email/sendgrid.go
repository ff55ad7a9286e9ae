package emailsvc

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/sanaa/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type SendgridService struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	tmpls      *core.EmailTemplates
	logger     core.Logger
}

var _ core.EmailService = (*SendgridService)(nil)

func NewSendgridService(conf *core.Config, tmpls *core.EmailTemplates, logger core.Logger) *SendgridService {
	from := conf.DefaultFromAddress()
	return &SendgridService{
		key:        conf.SendgridApiKey,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		tmpls:      tmpls,
		logger:     logger,
	}
}

// SendMessage posts msg to SendGrid. Failures are *core.RateLimitedError (429),
// temporary *core.DeliveryError (network, 5xx) or permanent *core.DeliveryError (other 4xx).
func (svc *SendgridService) SendMessage(ctx context.Context, msg *core.EmailMessage) error {
	if err := msg.Render(svc.tmpls); err != nil {
		return &core.DeliveryError{Err: errors.Wrap(err, "rendering email")}
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return &core.DeliveryError{Err: errors.New("empty email")}
	}

	req := sendgrid.GetRequest(svc.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(*msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return &core.DeliveryError{Err: errors.Wrap(err, "sending email"), Temporary: true}
	}
	return classify(res)
}

func classify(res *rest.Response) error {
	switch {
	case res.StatusCode < http.StatusBadRequest:
		return nil
	case res.StatusCode == http.StatusTooManyRequests:
		return &core.RateLimitedError{RetryAfter: retryAfter(res.Headers)}
	case res.StatusCode >= http.StatusInternalServerError:
		return &core.DeliveryError{Err: fmt.Errorf("status %d: %s", res.StatusCode, res.Body), Temporary: true}
	}
	return &core.DeliveryError{Err: fmt.Errorf("status %d: %s", res.StatusCode, res.Body)}
}

// retryAfter reads a Retry-After (seconds) or X-RateLimit-Reset (unix time) header.
func retryAfter(headers map[string][]string) time.Duration {
	get := func(name string) string {
		for k, v := range headers {
			if strings.EqualFold(k, name) && len(v) > 0 {
				return v[0]
			}
		}
		return ""
	}
	if secs, err := strconv.Atoi(get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if reset, err := strconv.ParseInt(get("X-RateLimit-Reset"), 10, 64); err == nil {
		if d := time.Until(time.Unix(reset, 0)); d > 0 {
			return d
		}
	}
	return 0
}

func (svc *SendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(getSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(getSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(getSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	for _, a := range msg.Attachments {
		m.AddAttachment(getSGAttachment(a))
	}
	if len(msg.Categories) > 0 {
		m.AddCategories(msg.Categories...)
	}
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}
	return m
}

func getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func getSGAttachment(at core.Attachment) *sgmail.Attachment {
	return &sgmail.Attachment{
		Content:     at.Content.String(),
		Type:        at.ContentType,
		Filename:    at.Filename,
		Disposition: "attachment",
	}
}
