package certificate_test

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
	"github.com/trezcool/sanaa/tests"
)

func newDispatchCertificate(t *testing.T, f *fixture) certificate.Certificate {
	nc := testutil.NewCertificate("OrgA", 0)
	nc.Recipients = []certificate.NewRecipient{
		{Name: "Alice", Email: "a@x.com"},
		{Name: "Bob", Email: "b@x.com"},
		{Name: "Carol", Email: "c@x.com"},
	}
	return testutil.CreateCertificate(t, f.CertSvc, f.adminA, nc)
}

func sentTo(msgs []core.EmailMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		for _, to := range m.To {
			out = append(out, to.Address)
		}
	}
	return out
}

func TestService_Send(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cert := newDispatchCertificate(t, f)

	bob := mail.Address{Name: "Bob", Address: "b@x.com"}
	errTemporary := &core.DeliveryError{Err: errors.New("503 service unavailable"), Temporary: true}
	errPermanent := &core.DeliveryError{Err: errors.New("400 bad request")}

	tests := []struct {
		name       string
		emails     []string
		opts       certificate.SendOptions
		caller     certificate.Caller
		failFunc   func(msg *core.EmailMessage, attempt int) error
		want       certificate.SendResult
		wantSentTo []string
		wantErr    error
	}{
		{
			name:   "partial failure with a temporary error",
			emails: []string{"a@x.com", "not-an-email", "b@x.com"},
			caller: f.adminA,
			failFunc: func(msg *core.EmailMessage, attempt int) error {
				if msg.To[0] == bob && attempt == 1 {
					return errTemporary
				}
				return nil
			},
			want:       certificate.SendResult{SentCount: 2, FailedRecipients: []string{"not-an-email"}},
			wantSentTo: []string{"a@x.com", "b@x.com"},
		},
		{
			name:   "permanent failure is not retried",
			emails: []string{"a@x.com", "b@x.com"},
			caller: f.adminA,
			failFunc: func(msg *core.EmailMessage, attempt int) error {
				if msg.To[0] == bob {
					return errPermanent
				}
				return nil
			},
			want:       certificate.SendResult{SentCount: 1, FailedRecipients: []string{"b@x.com"}},
			wantSentTo: []string{"a@x.com"},
		},
		{
			name:   "rate limited, then delivered",
			emails: []string{"b@x.com"},
			caller: f.superAdmin,
			failFunc: func(msg *core.EmailMessage, attempt int) error {
				if attempt == 1 {
					return &core.RateLimitedError{}
				}
				return nil
			},
			want:       certificate.SendResult{SentCount: 1, FailedRecipients: []string{}},
			wantSentTo: []string{"b@x.com"},
		},
		{
			name:   "temporary failures exhaust attempts",
			emails: []string{"b@x.com", "c@x.com"},
			caller: f.adminA,
			failFunc: func(msg *core.EmailMessage, attempt int) error {
				if msg.To[0] == bob {
					return errTemporary
				}
				return nil
			},
			want:       certificate.SendResult{SentCount: 1, FailedRecipients: []string{"b@x.com"}},
			wantSentTo: []string{"c@x.com"},
		},
		{
			name:       "empty list means every recipient",
			caller:     f.adminA,
			want:       certificate.SendResult{SentCount: 3, FailedRecipients: []string{}},
			wantSentTo: []string{"a@x.com", "b@x.com", "c@x.com"},
		},
		{
			name:       "duplicates are sent once",
			emails:     []string{"a@x.com", " A@X.com ", "a@x.com"},
			caller:     f.adminA,
			want:       certificate.SendResult{SentCount: 1, FailedRecipients: []string{}},
			wantSentTo: []string{"a@x.com"},
		},
		{
			name:       "not a recipient",
			emails:     []string{"z@x.com", "c@x.com"},
			caller:     f.adminA,
			want:       certificate.SendResult{SentCount: 1, FailedRecipients: []string{"z@x.com"}},
			wantSentTo: []string{"c@x.com"},
		},
		{name: "no valid address", emails: []string{"nope", "z@x.com"}, caller: f.adminA, wantErr: &core.ValidationError{}},
		{name: "unknown priority", emails: []string{"a@x.com"}, opts: certificate.SendOptions{Priority: "urgent"}, caller: f.adminA, wantErr: &core.ValidationError{}},
		{name: "admin of another org", emails: []string{"a@x.com"}, caller: f.adminB, wantErr: certificate.ErrForbidden},
		{name: "link holder", emails: []string{"a@x.com"}, caller: f.linkCaller(cert, cert.Recipients[0].ID), wantErr: certificate.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.Mailer.Reset()
			f.Mailer.FailFunc = tt.failFunc

			res, err := f.CertSvc.Send(ctx, cert.ID, tt.emails, tt.opts, tt.caller)
			switch want := tt.wantErr.(type) {
			case nil:
				if assert.NoError(t, err) {
					assert.Equal(t, tt.want, res)
					assert.ElementsMatch(t, tt.wantSentTo, sentTo(f.Mailer.Sent()))
				}
			case *core.ValidationError:
				assert.IsType(t, want, pkgerrors.Cause(err))
				assert.Empty(t, f.Mailer.Sent())
			default:
				assert.Equal(t, want, pkgerrors.Cause(err))
				assert.Empty(t, f.Mailer.Sent())
			}
		})
	}
}

func TestService_Send_attempts(t *testing.T) {
	f := setup(t)
	cert := newDispatchCertificate(t, f)
	bob := mail.Address{Name: "Bob", Address: "b@x.com"}

	f.Mailer.FailFunc = func(msg *core.EmailMessage, attempt int) error {
		return &core.DeliveryError{Err: errors.New("timeout"), Temporary: true}
	}
	res, err := f.CertSvc.Send(context.Background(), cert.ID, []string{"b@x.com"}, certificate.SendOptions{}, f.adminA)
	if assert.NoError(t, err) {
		assert.Equal(t, []string{"b@x.com"}, res.FailedRecipients)
	}
	assert.Equal(t, f.Conf.Certificates.MaxAttempts, f.Mailer.Attempts(bob))

	f.Mailer.Reset()
	f.Mailer.FailFunc = func(msg *core.EmailMessage, attempt int) error {
		return &core.DeliveryError{Err: errors.New("invalid address")}
	}
	_, err = f.CertSvc.Send(context.Background(), cert.ID, []string{"b@x.com"}, certificate.SendOptions{}, f.adminA)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.Mailer.Attempts(bob))
}

func TestService_Send_longRateLimit(t *testing.T) {
	f := setup(t)
	cert := newDispatchCertificate(t, f)
	bob := mail.Address{Name: "Bob", Address: "b@x.com"}

	f.Mailer.FailFunc = func(msg *core.EmailMessage, attempt int) error {
		if msg.To[0] == bob {
			return &core.RateLimitedError{RetryAfter: time.Hour}
		}
		return nil
	}
	start := time.Now()
	res, err := f.CertSvc.Send(context.Background(), cert.ID, nil, certificate.SendOptions{}, f.adminA)
	if assert.NoError(t, err) {
		assert.Equal(t, 2, res.SentCount)
		assert.Equal(t, []string{"b@x.com"}, res.FailedRecipients)
	}
	assert.Equal(t, 1, f.Mailer.Attempts(bob))
	assert.Less(t, time.Since(start), time.Minute)
}

func TestService_Send_message(t *testing.T) {
	f := setup(t)
	cert := newDispatchCertificate(t, f)

	opts := certificate.SendOptions{
		IncludeDownloadLink: true,
		CustomMessage:       "  Well done!  ",
		Priority:            certificate.PriorityHigh,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := f.CertSvc.Send(ctx, cert.ID, []string{"c@x.com"}, opts, f.adminA)
	if !assert.NoError(t, err) || !assert.Equal(t, 1, res.SentCount) {
		return
	}

	sent := f.Mailer.Sent()
	if !assert.Len(t, sent, 1) {
		return
	}
	msg := sent[0]
	carol := cert.Recipients[2]

	assert.Equal(t, "Your certificate: Go Workshop", msg.Subject)
	assert.Equal(t, "1 (Highest)", msg.Headers["X-Priority"])
	assert.Contains(t, msg.Categories, "priority-high")
	assert.Contains(t, msg.TextContent, "Carol")
	assert.Contains(t, msg.TextContent, "Well done!")
	assert.Contains(t, msg.TextContent, "http://front.test/certificates/"+cert.ID+"/view?r="+carol.ID+"&t=")
	assert.Contains(t, msg.TextContent, "http://api.test/v1/certificates/"+cert.ID+"/pdf?r="+carol.ID+"&t=")
	assert.True(t, strings.Contains(msg.HTMLContent, carol.ID), "html content links the recipient")
}
