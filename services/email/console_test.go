package emailsvc

import (
	"bytes"
	"context"
	"errors"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/sanaa/core"
)

func TestConsoleService_SendMessage(t *testing.T) {
	conf := testConfig()
	svc := NewConsoleService(conf, testTemplates(t, conf))
	var out bytes.Buffer
	svc.out = &out

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: "Ada", Address: "ada@example.com"}},
		Subject:      "Your certificate: Go Workshop",
		TemplateName: "certificate",
		TemplateData: map[string]string{
			"RecipientName":    "Ada",
			"OrganizationName": "OrgA",
			"Title":            "Go Workshop",
			"CustomMessage":    "",
			"ViewURL":          "http://front.test/certificates/c1/view?r=r1&t=tok",
			"DownloadURL":      "",
		},
		Headers: map[string]string{"X-Priority": "3 (Normal)"},
	}
	if !assert.NoError(t, svc.SendMessage(context.Background(), msg)) {
		return
	}

	printed := out.String()
	assert.Contains(t, printed, "Subject: [Sanaa] Your certificate: Go Workshop")
	assert.Contains(t, printed, `To: "Ada" <ada@example.com>`)
	assert.Contains(t, printed, "X-Priority: 3 (Normal)")
	assert.Contains(t, printed, "http://front.test/certificates/c1/view?r=r1&t=tok")
	assert.False(t, strings.Contains(msg.TextContent, "Download (PDF)"))
	assert.Contains(t, msg.HTMLContent, "OrgA")
}

func TestConsoleServiceMock(t *testing.T) {
	conf := testConfig()
	svc := NewConsoleServiceMock(conf, testTemplates(t, conf))
	ada := mail.Address{Name: "Ada", Address: "ada@example.com"}
	errBoom := &core.DeliveryError{Err: errors.New("boom"), Temporary: true}

	svc.FailFunc = func(msg *core.EmailMessage, attempt int) error {
		if attempt == 1 {
			return errBoom
		}
		return nil
	}
	msg := &core.EmailMessage{To: []mail.Address{ada}, Subject: "Hello", BodyStr: "Hi"}

	assert.Equal(t, errBoom, svc.SendMessage(context.Background(), msg))
	assert.Empty(t, svc.Sent())
	assert.NoError(t, svc.SendMessage(context.Background(), msg))
	assert.Len(t, svc.Sent(), 1)
	assert.Equal(t, 2, svc.Attempts(ada))

	svc.Reset()
	assert.Empty(t, svc.Sent())
	assert.Equal(t, 0, svc.Attempts(ada))
}
