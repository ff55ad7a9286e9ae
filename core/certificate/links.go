package certificate

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/sanaa/core"
)

var (
	linkSalt = []byte("sanaa.core.certificate.links")

	errInvalidLink = errors.New("invalid link")
	errLinkExpired = errors.New("link expired")

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// LinkIssuer mints and verifies recipient links. A token is bound to one recipient of one
// certificate, and to the certificate's LinkSalt: rotating the salt revokes every link.
type LinkIssuer struct {
	key         [32]byte
	frontendURL string
	apiURL      string
	ttlDays     int
	now         func() time.Time
}

func NewLinkIssuer(conf *core.Config) *LinkIssuer {
	ttlDays := int(conf.Certificates.LinkTTL / (24 * time.Hour))
	if ttlDays < 1 {
		ttlDays = 1
	}
	return &LinkIssuer{
		key:         sha256.Sum256(append(append([]byte{}, linkSalt...), conf.SecretKey...)),
		frontendURL: strings.TrimRight(conf.FrontendBaseURL, "/"),
		apiURL:      strings.TrimRight(conf.APIBaseURL, "/"),
		ttlDays:     ttlDays,
		now:         time.Now,
	}
}

// NewLinkSalt returns a fresh random salt for a certificate.
func NewLinkSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IssueViewLink returns the frontend URL recipientID can open without an account.
func (li *LinkIssuer) IssueViewLink(cert Certificate, recipientID string) (string, error) {
	q, err := li.query(cert, recipientID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/certificates/%s/view?%s", li.frontendURL, url.PathEscape(cert.ID), q), nil
}

// IssueDownloadLink returns the API URL streaming recipientID's artifact in format f.
func (li *LinkIssuer) IssueDownloadLink(cert Certificate, recipientID string, f Format) (string, error) {
	q, err := li.query(cert, recipientID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/v1/certificates/%s/%s?%s", li.apiURL, url.PathEscape(cert.ID), f, q), nil
}

func (li *LinkIssuer) query(cert Certificate, recipientID string) (string, error) {
	if _, ok := cert.Recipient(recipientID); !ok {
		return "", ErrNotFound
	}
	q := make(url.Values)
	q.Set("r", recipientID)
	q.Set("t", li.MakeToken(cert, recipientID))
	return q.Encode(), nil
}

// MakeToken generates the link token of recipientID for cert.
func (li *LinkIssuer) MakeToken(cert Certificate, recipientID string) string {
	return li.makeTokenWithTimestamp(cert, recipientID, numDaysSince2001(li.now()))
}

// VerifyLink checks that token was issued for recipientID of cert, is not expired
// and was not revoked. recipientID must still be a recipient of cert.
func (li *LinkIssuer) VerifyLink(cert Certificate, recipientID, token string) error {
	if token == "" || recipientID == "" || cert.LinkSalt == "" {
		return errInvalidLink
	}
	if _, ok := cert.Recipient(recipientID); !ok {
		return errInvalidLink
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidLink
	}
	data, err := b32.DecodeString(parts[0])
	if err != nil {
		return errInvalidLink
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidLink
	}

	// check that token has not been tampered with
	expected := li.makeTokenWithTimestamp(cert, recipientID, ts)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 0 {
		return errInvalidLink
	}

	if numDaysSince2001(li.now())-ts > li.ttlDays {
		return errLinkExpired
	}
	return nil
}

func (li *LinkIssuer) makeTokenWithTimestamp(cert Certificate, recipientID string, ts int) string {
	tsB32 := b32.EncodeToString([]byte(strconv.Itoa(ts)))
	return fmt.Sprintf("%s-%s", tsB32, li.sign(hashValue(cert, recipientID, ts)))
}

func (li *LinkIssuer) sign(val []byte) string {
	h := hmac.New(sha256.New, li.key[:])
	_, _ = h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func hashValue(cert Certificate, recipientID string, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(cert.ID)
	val.WriteByte(0)
	val.WriteString(recipientID)
	val.WriteByte(0)
	val.WriteString(cert.LinkSalt)
	val.WriteByte(0)
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}
