package certificate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/organization"
	"github.com/trezcool/sanaa/core/user"
)

var (
	errOrgNotApproved   = "organization not found or not approved"
	errOrgNotManageable = "you cannot issue certificates for this organization"
	errTmplUnavailable  = "template not found"
)

type (
	Repository interface {
		// CreateCertificate persists cert and its recipients atomically, keeping their order.
		CreateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
		GetCertificateByID(ctx context.Context, id string) (Certificate, error)
		QueryCertificates(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Certificate, error)
		UpdateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
		SetArtifactPath(ctx context.Context, id string, f Format, path string) error
		DeleteCertificate(ctx context.Context, id string) error
	}

	// ArtifactStore keeps rendered artifacts. Open returns ErrArtifactNotFound for unknown keys.
	ArtifactStore interface {
		Put(ctx context.Context, key string, content []byte, contentType string) error
		Open(ctx context.Context, key string) (io.ReadCloser, error)
		DeletePrefix(ctx context.Context, prefix string) error
	}

	ServiceDeps struct {
		Repo          Repository
		Templates     TemplateRepository
		Organizations organization.Repository
		Store         ArtifactStore
		Mailer        core.EmailService
		Validate      *validator.Validate
		Logger        core.Logger
		Conf          *core.Config
	}

	Service struct {
		repo      Repository
		templates TemplateRepository
		orgs      organization.Repository
		store     ArtifactStore
		mailer    core.EmailService
		validate  *validator.Validate
		logger    core.Logger
		renderer  *Renderer
		links     *LinkIssuer
		gate      *Gate

		conf          core.CertificatesConfig
		renderTimeout time.Duration
		now           func() time.Time
	}
)

func NewService(deps ServiceDeps) *Service {
	links := NewLinkIssuer(deps.Conf)
	return &Service{
		repo:          deps.Repo,
		templates:     deps.Templates,
		orgs:          deps.Organizations,
		store:         deps.Store,
		mailer:        deps.Mailer,
		validate:      deps.Validate,
		logger:        deps.Logger,
		renderer:      NewRenderer(),
		links:         links,
		gate:          NewGate(links),
		conf:          deps.Conf.Certificates,
		renderTimeout: deps.Conf.Server.RenderTimeout,
		now:           time.Now,
	}
}

func (svc *Service) Links() *LinkIssuer { return svc.links }

func artifactPrefix(certID string, f Format) string {
	return path.Join("certificates", certID, string(f))
}

func artifactKey(certID string, f Format, recipientID string) string {
	return path.Join(artifactPrefix(certID, f), recipientID+"."+string(f))
}

func requireAdmin(caller Caller) error {
	if caller.IsAnonymous() {
		return ErrUnauthorized
	}
	if caller.Role != user.RoleAdmin && caller.Role != user.RoleSuperAdmin {
		return ErrForbidden
	}
	return nil
}

// load fetches a certificate and authorizes action on it.
// Anonymous callers get ErrUnauthorized instead of ErrNotFound, so links cannot be used to enumerate ids.
func (svc *Service) load(ctx context.Context, id string, caller Caller, action Action) (Certificate, error) {
	cert, err := svc.repo.GetCertificateByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound && caller.IsAnonymous() {
			return Certificate{}, ErrUnauthorized
		}
		return Certificate{}, err
	}
	if err = svc.gate.Authorize(caller, cert, action); err != nil {
		return Certificate{}, err
	}
	return cert, nil
}

// Create persists a new certificate with its recipients, in submitted order.
func (svc *Service) Create(ctx context.Context, nc NewCertificate, caller Caller) (Certificate, error) {
	if err := requireAdmin(caller); err != nil {
		return Certificate{}, err
	}
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Certificate{}, err
	}

	org, err := svc.orgs.GetOrganizationByName(ctx, nc.IssuedFrom)
	if err != nil && errors.Cause(err) != organization.ErrNotFound {
		return Certificate{}, errors.Wrap(err, "finding organization by name")
	}
	if err != nil || !org.IsApproved() {
		return Certificate{}, core.NewValidationError(nil, core.FieldError{Field: "issued_from", Error: errOrgNotApproved})
	}
	if !CanManage(caller, org.Name) {
		return Certificate{}, core.NewValidationError(nil, core.FieldError{Field: "issued_from", Error: errOrgNotManageable})
	}

	tmpl, err := svc.ResolveTemplate(ctx, nc.TemplateID, caller)
	if err != nil {
		if cause := errors.Cause(err); cause == ErrTemplateNotFound || cause == ErrForbidden {
			return Certificate{}, core.NewValidationError(nil, core.FieldError{Field: "template_id", Error: errTmplUnavailable})
		}
		return Certificate{}, errors.Wrap(err, "resolving template")
	}

	issuedDate, err := time.Parse(issuedDateLayout, nc.IssuedDate)
	if err != nil { // already validated
		return Certificate{}, core.NewValidationError(nil, core.FieldError{Field: "issued_date", Error: err.Error()})
	}
	salt, err := NewLinkSalt()
	if err != nil {
		return Certificate{}, errors.Wrap(err, "generating link salt")
	}

	now := svc.now().UTC()
	cert := Certificate{
		Title:          nc.Title,
		Description:    nc.Description,
		IssuedDate:     issuedDate,
		IssuedFrom:     org.Name,
		OrganizationID: org.ID,
		TemplateID:     tmpl.ID,
		LinkSalt:       salt,
		CreatedBy:      caller.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Recipients:     make([]Recipient, 0, len(nc.Recipients)),
	}
	for i, nr := range nc.Recipients {
		cert.Recipients = append(cert.Recipients, Recipient{Position: i, Name: nr.Name, Email: nr.Email})
	}

	cert, err = svc.repo.CreateCertificate(ctx, cert)
	if err != nil {
		return Certificate{}, errors.Wrap(err, "creating certificate")
	}
	return cert, nil
}

// Get returns the certificate; anonymous link holders only see their own recipient entry.
func (svc *Service) Get(ctx context.Context, id string, caller Caller) (Certificate, error) {
	cert, err := svc.load(ctx, id, caller, ActionView)
	if err != nil {
		return Certificate{}, err
	}
	if caller.IsAnonymous() {
		r, _ := cert.Recipient(caller.Link.RecipientID)
		return cert.restrictTo(r), nil
	}
	return cert, nil
}

// Query lists the certificates caller manages: their organization's, or all for superAdmins.
func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, caller Caller) ([]Certificate, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	filter.Clean()
	if caller.Role != user.RoleSuperAdmin {
		if filter.IssuedFrom != "" && filter.IssuedFrom != caller.OrganizationName {
			return []Certificate{}, nil
		}
		filter.IssuedFrom = caller.OrganizationName
	}
	certs, err := svc.repo.QueryCertificates(ctx, filter, ordering...)
	if err != nil {
		return nil, errors.Wrap(err, "querying certificates")
	}
	return certs, nil
}

// AttachArtifact records path as the storage location of format f. Re-attaching overwrites.
func (svc *Service) AttachArtifact(ctx context.Context, id string, f Format, path string) error {
	if !f.Valid() {
		return core.NewValidationError(nil, core.FieldError{Field: "format", Error: fmt.Sprintf("unknown format %q", f)})
	}
	return svc.repo.SetArtifactPath(ctx, id, f, path)
}

func (svc *Service) SetPublished(ctx context.Context, id string, published bool, caller Caller) (Certificate, error) {
	cert, err := svc.load(ctx, id, caller, ActionPublish)
	if err != nil {
		return Certificate{}, err
	}
	cert.Published = published
	cert.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdateCertificate(ctx, cert)
}

// RevokeLinks invalidates every link issued so far for the certificate.
func (svc *Service) RevokeLinks(ctx context.Context, id string, caller Caller) error {
	cert, err := svc.load(ctx, id, caller, ActionRevoke)
	if err != nil {
		return err
	}
	if cert.LinkSalt, err = NewLinkSalt(); err != nil {
		return errors.Wrap(err, "generating link salt")
	}
	cert.UpdatedAt = svc.now().UTC()
	_, err = svc.repo.UpdateCertificate(ctx, cert)
	return err
}

// Delete removes the certificate, its recipients and its artifacts. Issued links stop working.
func (svc *Service) Delete(ctx context.Context, id string, caller Caller) error {
	cert, err := svc.load(ctx, id, caller, ActionDelete)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteCertificate(ctx, cert.ID); err != nil {
		return errors.Wrap(err, "deleting certificate")
	}
	if err = svc.store.DeletePrefix(ctx, path.Join("certificates", cert.ID)); err != nil {
		svc.logger.Warn(fmt.Sprintf("deleting artifacts of certificate %s: %v", cert.ID, err), err)
	}
	return nil
}

type (
	FailedRecipient struct {
		RecipientID string `json:"recipient_id"`
		Email       string `json:"email"`
		Error       string `json:"error"`
	}

	GenerateResult struct {
		Paths  map[Format]string `json:"paths"`
		Failed []FailedRecipient `json:"failed"`
	}
)

// Generate renders every recipient's artifacts in parallel and attaches the paths of the
// formats that were produced for at least one recipient.
func (svc *Service) Generate(ctx context.Context, id string, caller Caller) (GenerateResult, error) {
	cert, err := svc.load(ctx, id, caller, ActionGenerate)
	if err != nil {
		return GenerateResult{}, err
	}
	tmpl, err := svc.ResolveTemplate(ctx, cert.TemplateID, caller)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "resolving template")
	}

	if svc.renderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.renderTimeout)
		defer cancel()
	}

	var (
		mu        sync.Mutex
		produced  = make(map[Format]int, len(AllFormats))
		failed    = make([]*FailedRecipient, len(cert.Recipients))
		firstErrs = make([]error, len(cert.Recipients))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.renderConcurrency())
	for i, r := range cert.Recipients {
		g.Go(func() error {
			formats, err := svc.renderRecipient(gctx, tmpl, cert, r, AllFormats...)
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			mu.Lock()
			defer mu.Unlock()
			for _, f := range formats {
				produced[f]++
			}
			if err != nil {
				failed[i] = &FailedRecipient{RecipientID: r.ID, Email: r.Email, Error: err.Error()}
				firstErrs[i] = err
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return GenerateResult{}, errors.Wrap(err, "generating artifacts")
	}

	res := GenerateResult{Paths: make(map[Format]string, len(AllFormats)), Failed: []FailedRecipient{}}
	for _, fr := range failed {
		if fr != nil {
			res.Failed = append(res.Failed, *fr)
		}
	}
	if len(produced) == 0 && len(res.Failed) > 0 {
		for _, ferr := range firstErrs {
			if ferr != nil {
				return GenerateResult{}, ferr
			}
		}
	}

	for _, f := range AllFormats {
		if produced[f] == 0 {
			continue
		}
		prefix := artifactPrefix(cert.ID, f)
		if err = svc.AttachArtifact(ctx, cert.ID, f, prefix); err != nil {
			return GenerateResult{}, errors.Wrapf(err, "attaching %s artifact", f)
		}
		res.Paths[f] = prefix
	}
	return res, nil
}

func (svc *Service) renderConcurrency() int {
	if svc.conf.RenderConcurrency > 0 {
		return svc.conf.RenderConcurrency
	}
	return 1
}

// renderRecipient renders and stores r's artifacts in formats.
// It returns the formats that were stored, and the first failure.
func (svc *Service) renderRecipient(ctx context.Context, tmpl Template, cert Certificate, r Recipient, formats ...Format) ([]Format, error) {
	doc, err := svc.renderer.Render(tmpl, cert.Fields(r))
	if err != nil {
		return nil, err
	}

	stored := make([]Format, 0, len(formats))
	for _, f := range formats {
		content, err := svc.convert(ctx, doc, f)
		if err != nil {
			return stored, err
		}
		if err = svc.store.Put(ctx, artifactKey(cert.ID, f, r.ID), content, f.ContentType()); err != nil {
			return stored, errors.Wrapf(err, "storing %s artifact", f)
		}
		stored = append(stored, f)
	}
	return stored, nil
}

// renderFormat renders a single format for r without storing it.
func (svc *Service) renderFormat(ctx context.Context, tmpl Template, cert Certificate, r Recipient, f Format) ([]byte, error) {
	doc, err := svc.renderer.Render(tmpl, cert.Fields(r))
	if err != nil {
		return nil, err
	}
	return svc.convert(ctx, doc, f)
}

// convert produces the bytes of doc in format f, retrying engine failures.
func (svc *Service) convert(ctx context.Context, doc HTMLDocument, f Format) ([]byte, error) {
	if f == FormatHTML {
		return doc, nil
	}
	op := func() ([]byte, error) {
		var (
			content []byte
			err     error
		)
		if f == FormatPDF {
			content, err = svc.renderer.ToPDF(doc)
		} else {
			content, err = svc.renderer.ToPNG(doc)
		}
		var rerr *RenderError
		if err != nil && !errors.As(err, &rerr) {
			return nil, backoff.Permanent(err)
		}
		return content, err
	}
	return backoff.Retry(ctx, op, svc.retryOptions()...)
}

// maxRetryInterval bounds the wait between two attempts, including server-requested ones.
const maxRetryInterval = 10 * time.Second

func (svc *Service) retryOptions() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if svc.conf.RetryInitialInterval > 0 {
		b.InitialInterval = svc.conf.RetryInitialInterval
	}
	b.MaxInterval = maxRetryInterval

	tries := svc.conf.MaxAttempts
	if tries < 1 {
		tries = 1
	}
	return []backoff.RetryOption{backoff.WithBackOff(b), backoff.WithMaxTries(uint(tries))}
}

// Artifact is a stored rendering, ready to be streamed.
type Artifact struct {
	Content     io.ReadCloser
	ContentType string
	Filename    string
}

// Download opens a recipient's artifact in format f, rendering it on demand when absent.
// Link holders always get their own artifact; admins pick the recipient (first one by default).
func (svc *Service) Download(ctx context.Context, id, recipientID string, f Format, caller Caller) (Artifact, error) {
	if !f.Valid() {
		return Artifact{}, ErrArtifactNotFound
	}
	cert, err := svc.load(ctx, id, caller, ActionDownload)
	if err != nil {
		return Artifact{}, err
	}

	var r Recipient
	var ok bool
	switch {
	case caller.IsAnonymous():
		r, ok = cert.Recipient(caller.Link.RecipientID)
	case recipientID != "":
		r, ok = cert.Recipient(recipientID)
	case len(cert.Recipients) > 0:
		r, ok = cert.Recipients[0], true
	}
	if !ok {
		return Artifact{}, ErrArtifactNotFound
	}

	key := artifactKey(cert.ID, f, r.ID)
	art := Artifact{ContentType: f.ContentType(), Filename: fmt.Sprintf("%s-%s.%s", cert.ID, r.ID, f)}
	if cert.ArtifactPath(f).Valid {
		rc, err := svc.store.Open(ctx, key)
		if err == nil {
			art.Content = rc
			return art, nil
		}
		if errors.Cause(err) != ErrArtifactNotFound {
			return Artifact{}, errors.Wrap(err, "opening artifact")
		}
	}

	// absent: render this recipient only, then serve it
	tmpl, err := svc.templates.GetTemplateByID(ctx, cert.TemplateID)
	if err != nil {
		return Artifact{}, errors.Wrap(err, "finding template")
	}
	rctx := ctx
	if svc.renderTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, svc.renderTimeout)
		defer cancel()
	}

	// link holders get a transient rendering; the record and the store stay untouched
	if caller.IsAnonymous() {
		content, err := svc.renderFormat(rctx, tmpl, cert, r, f)
		if err != nil {
			return Artifact{}, err
		}
		art.Content = io.NopCloser(bytes.NewReader(content))
		return art, nil
	}

	if _, err = svc.renderRecipient(rctx, tmpl, cert, r, f); err != nil {
		return Artifact{}, err
	}
	if err = svc.AttachArtifact(ctx, cert.ID, f, artifactPrefix(cert.ID, f)); err != nil {
		return Artifact{}, errors.Wrap(err, "attaching artifact")
	}
	rc, err := svc.store.Open(ctx, key)
	if err != nil {
		return Artifact{}, errors.Wrap(err, "opening artifact")
	}
	art.Content = rc
	return art, nil
}
