package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
	"github.com/trezcool/sanaa/core/organization"
	"github.com/trezcool/sanaa/core/user"
	appfs "github.com/trezcool/sanaa/fs"
	emailsvc "github.com/trezcool/sanaa/services/email"
	inmemdb "github.com/trezcool/sanaa/storage/database/inmem"
	"github.com/trezcool/sanaa/storage/files"
)

const ClassicLayout = `<div class="certificate classic">
  <h1>{{.title}}</h1>
  <p class="lead">This certificate is awarded to</p>
  <h2>{{.recipientName}}</h2>
  {{with .description}}<p class="description">{{.}}</p>{{end}}
  <p class="issuer">Issued by {{.organizationName}}</p>
  <p class="date">{{.issuedDate}}</p>
</div>`

// Config returns a config suitable for tests: no network, fast retries.
func Config() *core.Config {
	return &core.Config{
		TestMode:         true,
		Env:              "TEST",
		AppName:          "Sanaa",
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://front.test",
		APIBaseURL:       "http://api.test",
		DefaultFromEmail: "Sanaa <noreply@sanaa.test>",
		Server: core.ServerConfig{
			Host:                      "127.0.0.1:0",
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
			RenderTimeout:             30 * time.Second,
		},
		Storage: core.StorageConfig{Driver: "local"},
		Certificates: core.CertificatesConfig{
			LinkTTL:              30 * 24 * time.Hour,
			RenderConcurrency:    2,
			MailConcurrency:      2,
			MaxAttempts:          3,
			RetryInitialInterval: time.Millisecond,
		},
	}
}

// Logger is a core.Logger writing to the test log.
type Logger struct {
	t testing.TB
}

var _ core.Logger = Logger{}

func NewLogger(t testing.TB) Logger { return Logger{t: t} }

func (l Logger) log(level, msg string, args []interface{}) {
	l.t.Helper()
	l.t.Logf("%s: %s %v", level, msg, args)
}

func (l Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l Logger) Fatal(msg string, args ...interface{}) {
	l.t.Helper()
	l.t.Fatalf("FATAL: %s %v", msg, args)
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// Env wires every service on top of in-memory repositories, a local artifact store and a mailer mock.
type Env struct {
	Conf       *core.Config
	Logger     Logger
	DB         *inmemdb.DB
	Users      user.Repository
	Orgs       organization.Repository
	Templates  *inmemdb.TemplateRepository
	Store      *files.LocalStore
	Mailer     *emailsvc.ConsoleServiceMock
	Validate   *validator.Validate
	Translator ut.Translator
	UserSvc    *user.Service
	CertSvc    *certificate.Service
}

func NewEnv(t *testing.T, conf ...*core.Config) *Env {
	t.Helper()

	env := &Env{Conf: Config(), Logger: NewLogger(t), DB: inmemdb.Open()}
	if len(conf) > 0 {
		env.Conf = conf[0]
	}
	env.Users = inmemdb.NewUserRepository(env.DB)
	env.Orgs = inmemdb.NewOrganizationRepository(env.DB)
	env.Templates = inmemdb.NewTemplateRepository(env.DB)
	env.Validate, env.Translator = NewValidator()

	store, err := files.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() failed: %v", err)
	}
	env.Store = store

	tmpls, err := core.ParseEmailTemplates(appfs.FS, "assets/templates/email", env.Conf)
	if err != nil {
		t.Fatalf("ParseEmailTemplates() failed: %v", err)
	}
	env.Mailer = emailsvc.NewConsoleServiceMock(env.Conf, tmpls)

	env.UserSvc = user.NewService(env.Users, env.Validate, env.Logger)
	env.CertSvc = certificate.NewService(certificate.ServiceDeps{
		Repo:          inmemdb.NewCertificateRepository(env.DB),
		Templates:     env.Templates,
		Organizations: env.Orgs,
		Store:         env.Store,
		Mailer:        env.Mailer,
		Validate:      env.Validate,
		Logger:        env.Logger,
		Conf:          env.Conf,
	})

	CreateTemplate(t, env.Templates, "classic", "", ClassicLayout)
	return env
}

func CreateTemplate(t *testing.T, repo *inmemdb.TemplateRepository, id, orgID, layout string) certificate.Template {
	t.Helper()
	tmpl := certificate.Template{
		ID:     id,
		Name:   id,
		Layout: layout,
		RequiredFields: []string{
			certificate.FieldRecipientName,
			certificate.FieldTitle,
			certificate.FieldIssuedDate,
			certificate.FieldOrganizationName,
		},
	}
	if orgID != "" {
		tmpl.OrganizationID.SetValid(orgID)
	}
	tmpl, err := repo.CreateTemplate(context.Background(), tmpl)
	if err != nil {
		t.Fatalf("CreateTemplate() failed: %v", err)
	}
	return tmpl
}

func CreateOrganization(t *testing.T, repo organization.Repository, name string, status ...organization.ApprovalStatus) organization.Organization {
	t.Helper()
	st := organization.StatusApproved
	if len(status) > 0 {
		st = status[0]
	}
	org, err := repo.CreateOrganization(context.Background(), organization.Organization{
		Name:           name,
		ApprovalStatus: st,
		Published:      true,
		AdminEmail:     "admin@" + name + ".test",
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateOrganization() failed: %v", err)
	}
	return org
}

func CreateUser(t *testing.T, repo user.Repository, name, email, pwd string, role user.Role, orgName string, isActive ...bool) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	usr := user.User{
		Name:             name,
		Email:            email,
		Role:             role,
		OrganizationName: orgName,
		IsActive:         len(isActive) == 0 || isActive[0],
		CreatedAt:        tstamp,
		UpdatedAt:        tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// NewCertificate returns a valid NewCertificate for orgName with n recipients.
func NewCertificate(orgName string, n int) certificate.NewCertificate {
	nc := certificate.NewCertificate{
		Title:       "Go Workshop",
		Description: "Two days of concurrency",
		IssuedDate:  "2024-05-17",
		IssuedFrom:  orgName,
		TemplateID:  "classic",
	}
	for i := 1; i <= n; i++ {
		nc.Recipients = append(nc.Recipients, certificate.NewRecipient{
			Name:  fmt.Sprintf("Recipient %d", i),
			Email: fmt.Sprintf("r%d@example.com", i),
		})
	}
	return nc
}

func CreateCertificate(t *testing.T, svc *certificate.Service, caller certificate.Caller, nc certificate.NewCertificate) certificate.Certificate {
	t.Helper()
	cert, err := svc.Create(context.Background(), nc, caller)
	if err != nil {
		t.Fatalf("CreateCertificate() failed: %v", err)
	}
	return cert
}
