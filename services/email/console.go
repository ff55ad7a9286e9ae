package emailsvc

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core"
)

// ConsoleService prints emails instead of sending them.
type ConsoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	tmpls            *core.EmailTemplates
	out              io.Writer
}

var _ core.EmailService = (*ConsoleService)(nil)

func NewConsoleService(conf *core.Config, tmpls *core.EmailTemplates) *ConsoleService {
	return &ConsoleService{
		defaultFromEmail: conf.DefaultFromAddress(),
		subjPrefix:       "[" + conf.AppName + "] ",
		tmpls:            tmpls,
		out:              os.Stdout,
	}
}

func (svc *ConsoleService) SendMessage(_ context.Context, msg *core.EmailMessage) error {
	if err := msg.Render(svc.tmpls); err != nil {
		return &core.DeliveryError{Err: errors.Wrap(err, "rendering email")}
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return &core.DeliveryError{Err: errors.New("empty email")}
	}
	body, err := svc.format(*msg)
	if err != nil {
		return &core.DeliveryError{Err: err}
	}
	if svc.out != nil {
		log.New(svc.out, "", log.LstdFlags).Println(body)
	}
	return nil
}

func (svc *ConsoleService) format(msg core.EmailMessage) (string, error) {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	_, _ = fmt.Fprintf(body, "BCC: %s\r\n", joinAddresses(msg.Bcc))
	for k, v := range msg.Headers {
		_, _ = fmt.Fprintf(body, "%s: %s\r\n", k, v)
	}

	var mixedW *multipart.Writer
	altW := multipart.NewWriter(body)
	defer altW.Close()

	if msg.HasAttachments() {
		mixedW = multipart.NewWriter(body)
		defer mixedW.Close()
		_, _ = fmt.Fprintf(body, "Content-Type: multipart/mixed; boundary=%s\r\n", mixedW.Boundary())
	} else {
		_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n", altW.Boundary())
	}
	_, _ = fmt.Fprint(body, "\r\n")

	if mixedW != nil {
		if _, err := mixedW.CreatePart(textproto.MIMEHeader{"Content-Type": {"multipart/alternative; boundary=" + altW.Boundary()}}); err != nil {
			return "", errors.Wrap(err, "creating multipart/alternative part")
		}
	}

	w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain"}})
	if err != nil {
		return "", errors.Wrap(err, "creating text/plain part")
	}
	_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)

	if msg.HTMLContent != "" {
		w, err = altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html"}})
		if err != nil {
			return "", errors.Wrap(err, "creating text/html part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}

	if mixedW != nil {
		for _, at := range msg.Attachments {
			w, err = mixedW.CreatePart(textproto.MIMEHeader{
				"Content-Type":              {at.ContentType},
				"Content-Transfer-Encoding": {"base64"},
				"Content-Disposition":       {"attachment; filename=" + at.Filename}})
			if err != nil {
				return "", errors.Wrap(err, "creating "+at.ContentType+" part")
			}
			_, _ = fmt.Fprintf(w, "%s\r\n", at.Content.String())
		}
	}
	return body.String(), nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// ConsoleServiceMock records sent emails without printing them.
// FailFunc, when set, decides whether an attempt fails; failed attempts are not recorded.
type ConsoleServiceMock struct {
	ConsoleService
	FailFunc func(msg *core.EmailMessage, attempt int) error

	mu       sync.Mutex
	sent     []core.EmailMessage
	attempts map[string]int
}

func NewConsoleServiceMock(conf *core.Config, tmpls *core.EmailTemplates) *ConsoleServiceMock {
	svc := &ConsoleServiceMock{
		ConsoleService: *NewConsoleService(conf, tmpls),
		attempts:       make(map[string]int),
	}
	svc.out = nil
	return svc
}

func (svc *ConsoleServiceMock) SendMessage(ctx context.Context, msg *core.EmailMessage) error {
	svc.mu.Lock()
	key := joinAddresses(msg.To)
	svc.attempts[key]++
	attempt := svc.attempts[key]
	failFunc := svc.FailFunc
	svc.mu.Unlock()

	if failFunc != nil {
		if err := failFunc(msg, attempt); err != nil {
			return err
		}
	}
	if err := svc.ConsoleService.SendMessage(ctx, msg); err != nil {
		return err
	}

	svc.mu.Lock()
	svc.sent = append(svc.sent, *msg)
	svc.mu.Unlock()
	return nil
}

// Sent returns the recorded emails.
func (svc *ConsoleServiceMock) Sent() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.sent...)
}

// Attempts returns how many times an email to addr was tried.
func (svc *ConsoleServiceMock) Attempts(addr mail.Address) int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.attempts[addr.String()]
}

func (svc *ConsoleServiceMock) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sent = nil
	svc.attempts = make(map[string]int)
	svc.FailFunc = nil
}
