package certificate

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"sort"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/sanaa/core"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

var priorityHeaders = map[Priority]string{
	PriorityHigh:   "1 (Highest)",
	PriorityNormal: "3 (Normal)",
	PriorityLow:    "5 (Lowest)",
}

type SendOptions struct {
	IncludeDownloadLink bool     `json:"include_download_link"`
	CustomMessage       string   `json:"custom_message"`
	Priority            Priority `json:"priority"`
}

// SendResult distinguishes delivered and failed addresses. FailedRecipients keeps input order.
type SendResult struct {
	SentCount        int      `json:"sent_count"`
	FailedRecipients []string `json:"failed_recipients"`
}

// certificateEmail is the data of the "certificate" email template.
type certificateEmail struct {
	RecipientName    string
	OrganizationName string
	Title            string
	CustomMessage    string
	ViewURL          string
	DownloadURL      string
}

type delivery struct {
	pos       int
	email     string
	recipient Recipient
}

type failure struct {
	pos   int
	email string
}

// Send emails each address its own secure link. An empty emails list means every recipient.
// Invalid, unknown and undeliverable addresses are reported in the result; only a list
// without a single valid recipient fails as a whole.
func (svc *Service) Send(ctx context.Context, id string, emails []string, opts SendOptions, caller Caller) (SendResult, error) {
	cert, err := svc.load(ctx, id, caller, ActionSend)
	if err != nil {
		return SendResult{}, err
	}

	if opts.Priority == "" {
		opts.Priority = PriorityNormal
	}
	if _, ok := priorityHeaders[opts.Priority]; !ok {
		return SendResult{}, core.NewValidationError(nil, core.FieldError{
			Field: "priority", Error: "must be one of low, normal, high",
		})
	}
	opts.CustomMessage = core.CleanString(opts.CustomMessage)

	byEmail := make(map[string]Recipient, len(cert.Recipients))
	for _, r := range cert.Recipients {
		key := strings.ToLower(r.Email)
		if _, ok := byEmail[key]; !ok {
			byEmail[key] = r
		}
	}
	if len(emails) == 0 {
		for _, r := range cert.Recipients {
			emails = append(emails, r.Email)
		}
	}

	var (
		deliveries []delivery
		failures   []failure
		seen       = make(map[string]bool, len(emails))
	)
	for pos, raw := range emails {
		email := core.CleanString(raw)
		key := strings.ToLower(email)
		if seen[key] {
			continue
		}
		seen[key] = true

		if svc.validate.Var(email, "required,email") != nil {
			failures = append(failures, failure{pos: pos, email: email})
			continue
		}
		r, ok := byEmail[key]
		if !ok {
			failures = append(failures, failure{pos: pos, email: email})
			continue
		}
		deliveries = append(deliveries, delivery{pos: pos, email: email, recipient: r})
	}
	if len(deliveries) == 0 {
		return SendResult{}, core.NewValidationError(
			errors.New("no valid recipients"),
			core.FieldError{Field: "emails", Error: "no valid recipient of this certificate"},
		)
	}

	var (
		mu   sync.Mutex
		sent int
	)
	g := new(errgroup.Group)
	g.SetLimit(svc.mailConcurrency())
	for _, d := range deliveries {
		g.Go(func() error {
			err := svc.deliver(ctx, cert, d.recipient, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				svc.logger.Warn(fmt.Sprintf("sending certificate %s to %s: %v", cert.ID, d.email, err), err)
				failures = append(failures, failure{pos: d.pos, email: d.email})
				return nil
			}
			sent++
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].pos < failures[j].pos })
	res := SendResult{SentCount: sent, FailedRecipients: make([]string, 0, len(failures))}
	for _, f := range failures {
		res.FailedRecipients = append(res.FailedRecipients, f.email)
	}
	return res, nil
}

func (svc *Service) mailConcurrency() int {
	if svc.conf.MailConcurrency > 0 {
		return svc.conf.MailConcurrency
	}
	return 1
}

func (svc *Service) newMessage(cert Certificate, r Recipient, opts SendOptions) (*core.EmailMessage, error) {
	viewURL, err := svc.links.IssueViewLink(cert, r.ID)
	if err != nil {
		return nil, errors.Wrap(err, "issuing view link")
	}
	data := certificateEmail{
		RecipientName:    r.Name,
		OrganizationName: cert.IssuedFrom,
		Title:            cert.Title,
		CustomMessage:    opts.CustomMessage,
		ViewURL:          viewURL,
	}
	if opts.IncludeDownloadLink {
		if data.DownloadURL, err = svc.links.IssueDownloadLink(cert, r.ID, FormatPDF); err != nil {
			return nil, errors.Wrap(err, "issuing download link")
		}
	}

	return &core.EmailMessage{
		To:           []mail.Address{{Name: r.Name, Address: r.Email}},
		Subject:      fmt.Sprintf("Your certificate: %s", cert.Title),
		TemplateName: "certificate",
		TemplateData: data,
		Categories:   []string{"certificate", "priority-" + string(opts.Priority)},
		Headers:      map[string]string{"X-Priority": priorityHeaders[opts.Priority]},
	}, nil
}

// deliver sends r's email, retrying temporary and rate-limited failures.
func (svc *Service) deliver(ctx context.Context, cert Certificate, r Recipient, opts SendOptions) error {
	msg, err := svc.newMessage(cert, r, opts)
	if err != nil {
		return err
	}

	op := func() (struct{}, error) {
		err := svc.mailer.SendMessage(ctx, msg)
		if err == nil {
			return struct{}{}, nil
		}
		var rl *core.RateLimitedError
		if errors.As(err, &rl) {
			if rl.RetryAfter > maxRetryInterval {
				return struct{}{}, backoff.Permanent(errors.Wrapf(err, "retry window of %s exceeds %s", rl.RetryAfter, maxRetryInterval))
			}
			if rl.RetryAfter > 0 {
				return struct{}{}, backoff.RetryAfter(int(math.Ceil(rl.RetryAfter.Seconds())))
			}
			return struct{}{}, err
		}
		var de *core.DeliveryError
		if errors.As(err, &de) && de.Temporary {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}
	_, err = backoff.Retry(ctx, op, svc.retryOptions()...)
	return err
}
