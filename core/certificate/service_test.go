package certificate_test

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
	"github.com/trezcool/sanaa/core/organization"
	"github.com/trezcool/sanaa/core/user"
	inmemdb "github.com/trezcool/sanaa/storage/database/inmem"
	"github.com/trezcool/sanaa/tests"
)

type fixture struct {
	*testutil.Env
	orgA, orgB organization.Organization
	superAdmin certificate.Caller
	adminA     certificate.Caller
	adminB     certificate.Caller
	member     certificate.Caller
}

func setup(t *testing.T) *fixture {
	env := testutil.NewEnv(t)
	f := &fixture{Env: env}
	f.orgA = testutil.CreateOrganization(t, env.Orgs, "OrgA")
	f.orgB = testutil.CreateOrganization(t, env.Orgs, "OrgB")

	caller := func(name, email string, role user.Role, org organization.Organization) certificate.Caller {
		usr := testutil.CreateUser(t, env.Users, name, email, "", role, org.Name)
		return certificate.CallerFromUser(usr, org.ID)
	}
	f.superAdmin = caller("Root", "root@sanaa.test", user.RoleSuperAdmin, organization.Organization{})
	f.adminA = caller("Ada", "ada@orga.test", user.RoleAdmin, f.orgA)
	f.adminB = caller("Bob", "bob@orgb.test", user.RoleAdmin, f.orgB)
	f.member = caller("Cid", "cid@orga.test", user.RoleUser, f.orgA)
	return f
}

// linkCaller returns the anonymous caller holding recipient rid's link.
func (f *fixture) linkCaller(cert certificate.Certificate, rid string) certificate.Caller {
	return certificate.Caller{Link: &certificate.LinkClaims{RecipientID: rid, Token: f.CertSvc.Links().MakeToken(cert, rid)}}
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v; want *core.ValidationError", err)
	}
	names := make([]string, 0, len(verr.Fields))
	for _, fe := range verr.Fields {
		names = append(names, fe.Field)
	}
	return names
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("recipients keep submitted order", func(t *testing.T) {
		nc := testutil.NewCertificate("OrgA", 5)
		cert, err := f.CertSvc.Create(ctx, nc, f.adminA)
		if !assert.NoError(t, err) {
			return
		}
		assert.NotEmpty(t, cert.ID)
		assert.Equal(t, f.orgA.ID, cert.OrganizationID)
		assert.Equal(t, f.adminA.UserID, cert.CreatedBy)
		assert.False(t, cert.Published)
		assert.NotEmpty(t, cert.LinkSalt)

		got, err := f.CertSvc.Get(ctx, cert.ID, f.superAdmin)
		if assert.NoError(t, err) && assert.Len(t, got.Recipients, 5) {
			for i, r := range got.Recipients {
				assert.Equal(t, nc.Recipients[i].Email, r.Email)
				assert.NotEmpty(t, r.ID)
			}
		}
	})

	t.Run("super admin issues for any org", func(t *testing.T) {
		_, err := f.CertSvc.Create(ctx, testutil.NewCertificate("OrgB", 1), f.superAdmin)
		assert.NoError(t, err)
	})

	t.Run("zero recipients", func(t *testing.T) {
		_, err := f.CertSvc.Create(ctx, testutil.NewCertificate("OrgA", 0), f.adminA)
		assert.IsType(t, validator.ValidationErrors{}, errors.Cause(err))
	})

	t.Run("invalid recipient email", func(t *testing.T) {
		nc := testutil.NewCertificate("OrgA", 2)
		nc.Recipients[1].Email = "not-an-email"
		_, err := f.CertSvc.Create(ctx, nc, f.adminA)
		assert.IsType(t, validator.ValidationErrors{}, errors.Cause(err))
	})

	t.Run("unknown organization", func(t *testing.T) {
		_, err := f.CertSvc.Create(ctx, testutil.NewCertificate("Nope", 1), f.superAdmin)
		assert.Equal(t, []string{"issued_from"}, fieldNames(t, err))
	})

	t.Run("organization not approved", func(t *testing.T) {
		testutil.CreateOrganization(t, f.Orgs, "Pending", organization.StatusPending)
		_, err := f.CertSvc.Create(ctx, testutil.NewCertificate("Pending", 1), f.superAdmin)
		assert.Equal(t, []string{"issued_from"}, fieldNames(t, err))
	})

	t.Run("admin of another organization", func(t *testing.T) {
		_, err := f.CertSvc.Create(ctx, testutil.NewCertificate("OrgA", 1), f.adminB)
		assert.Equal(t, []string{"issued_from"}, fieldNames(t, err))
	})

	t.Run("unknown template", func(t *testing.T) {
		nc := testutil.NewCertificate("OrgA", 1)
		nc.TemplateID = "nope"
		_, err := f.CertSvc.Create(ctx, nc, f.adminA)
		assert.Equal(t, []string{"template_id"}, fieldNames(t, err))
	})

	t.Run("template of another organization", func(t *testing.T) {
		testutil.CreateTemplate(t, f.Templates, "orgb-only", f.orgB.ID, testutil.ClassicLayout)
		nc := testutil.NewCertificate("OrgA", 1)
		nc.TemplateID = "orgb-only"
		_, err := f.CertSvc.Create(ctx, nc, f.adminA)
		assert.Equal(t, []string{"template_id"}, fieldNames(t, err))
	})

	t.Run("plain user", func(t *testing.T) {
		_, err := f.CertSvc.Create(ctx, testutil.NewCertificate("OrgA", 1), f.member)
		assert.Equal(t, certificate.ErrForbidden, errors.Cause(err))
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.CertSvc.Create(ctx, testutil.NewCertificate("OrgA", 1), certificate.Caller{})
		assert.Equal(t, certificate.ErrUnauthorized, errors.Cause(err))
	})
}

func TestService_Get(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cert := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 3))
	rid := cert.Recipients[1].ID

	tests := []struct {
		name           string
		id             string
		caller         certificate.Caller
		wantErr        error
		wantRecipients int
	}{
		{name: "super admin", id: cert.ID, caller: f.superAdmin, wantRecipients: 3},
		{name: "admin of issuing org", id: cert.ID, caller: f.adminA, wantRecipients: 3},
		{name: "admin of another org", id: cert.ID, caller: f.adminB, wantErr: certificate.ErrForbidden},
		{name: "plain user", id: cert.ID, caller: f.member, wantErr: certificate.ErrForbidden},
		{name: "link holder", id: cert.ID, caller: f.linkCaller(cert, rid), wantRecipients: 1},
		{name: "no credentials", id: cert.ID, caller: certificate.Caller{}, wantErr: certificate.ErrUnauthorized},
		{name: "unknown id, admin", id: "nope", caller: f.superAdmin, wantErr: certificate.ErrNotFound},
		{name: "unknown id, link holder", id: "nope", caller: f.linkCaller(cert, rid), wantErr: certificate.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.CertSvc.Get(ctx, tt.id, tt.caller)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				assert.Empty(t, got.ID)
				return
			}
			if assert.NoError(t, err) {
				assert.Len(t, got.Recipients, tt.wantRecipients)
			}
		})
	}

	got, err := f.CertSvc.Get(ctx, cert.ID, f.linkCaller(cert, rid))
	if assert.NoError(t, err) && assert.Len(t, got.Recipients, 1) {
		assert.Equal(t, rid, got.Recipients[0].ID)
	}
}

func TestService_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	certA := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 1))
	certB := testutil.CreateCertificate(t, f.CertSvc, f.adminB, testutil.NewCertificate("OrgB", 1))

	ids := func(certs []certificate.Certificate) []string {
		out := make([]string, 0, len(certs))
		for _, c := range certs {
			out = append(out, c.ID)
		}
		return out
	}

	all, err := f.CertSvc.Query(ctx, certificate.QueryFilter{}, nil, f.superAdmin)
	if assert.NoError(t, err) {
		assert.ElementsMatch(t, []string{certA.ID, certB.ID}, ids(all))
	}

	mine, err := f.CertSvc.Query(ctx, certificate.QueryFilter{}, nil, f.adminA)
	if assert.NoError(t, err) {
		assert.Equal(t, []string{certA.ID}, ids(mine))
	}

	theirs, err := f.CertSvc.Query(ctx, certificate.QueryFilter{IssuedFrom: "OrgB"}, nil, f.adminA)
	if assert.NoError(t, err) {
		assert.Empty(t, theirs)
	}

	_, err = f.CertSvc.Query(ctx, certificate.QueryFilter{}, nil, f.member)
	assert.Equal(t, certificate.ErrForbidden, errors.Cause(err))
}

func TestService_Generate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cert := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 3))

	t.Run("admin of another org", func(t *testing.T) {
		_, err := f.CertSvc.Generate(ctx, cert.ID, f.adminB)
		assert.Equal(t, certificate.ErrForbidden, errors.Cause(err))
	})

	t.Run("every format of every recipient", func(t *testing.T) {
		res, err := f.CertSvc.Generate(ctx, cert.ID, f.adminA)
		if !assert.NoError(t, err) {
			return
		}
		assert.Empty(t, res.Failed)
		assert.Len(t, res.Paths, 3)

		got, err := f.CertSvc.Get(ctx, cert.ID, f.adminA)
		if !assert.NoError(t, err) {
			return
		}
		for _, format := range certificate.AllFormats {
			assert.Equal(t, res.Paths[format], got.ArtifactPath(format).String)
			for _, r := range got.Recipients {
				rc, err := f.Store.Open(ctx, res.Paths[format]+"/"+r.ID+"."+string(format))
				if assert.NoError(t, err, "%s %s", format, r.ID) {
					_ = rc.Close()
				}
			}
		}
	})

	t.Run("regenerating overwrites", func(t *testing.T) {
		_, err := f.CertSvc.Generate(ctx, cert.ID, f.superAdmin)
		assert.NoError(t, err)
	})

	t.Run("missing template value", func(t *testing.T) {
		tmpl := testutil.CreateTemplate(t, f.Templates, "sponsored", "", `<h1>{{.title}}</h1><p>{{.sponsor}}</p>`)
		tmpl.RequiredFields = append(tmpl.RequiredFields, "sponsor")
		_, err := f.Templates.CreateTemplate(ctx, tmpl)
		if !assert.NoError(t, err) {
			return
		}

		nc := testutil.NewCertificate("OrgA", 2)
		nc.TemplateID = "sponsored"
		sponsored := testutil.CreateCertificate(t, f.CertSvc, f.adminA, nc)

		_, err = f.CertSvc.Generate(ctx, sponsored.ID, f.adminA)
		assert.Equal(t, []string{"sponsor"}, fieldNames(t, err))

		got, err := f.CertSvc.Get(ctx, sponsored.ID, f.adminA)
		if assert.NoError(t, err) {
			for _, format := range certificate.AllFormats {
				assert.False(t, got.ArtifactPath(format).Valid)
			}
		}
	})
}

// flakyStore fails every Put whose key contains failFor.
type flakyStore struct {
	certificate.ArtifactStore
	failFor string
}

func (s flakyStore) Put(ctx context.Context, key string, content []byte, contentType string) error {
	if strings.Contains(key, s.failFor) {
		return errors.New("disk full")
	}
	return s.ArtifactStore.Put(ctx, key, content, contentType)
}

func TestService_Generate_partialFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cert := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 3))
	bad := cert.Recipients[1]

	svc := certificate.NewService(certificate.ServiceDeps{
		Repo:          inmemdb.NewCertificateRepository(f.DB),
		Templates:     f.Templates,
		Organizations: f.Orgs,
		Store:         flakyStore{ArtifactStore: f.Store, failFor: bad.ID},
		Mailer:        f.Mailer,
		Validate:      f.Validate,
		Logger:        f.Logger,
		Conf:          f.Conf,
	})

	res, err := svc.Generate(ctx, cert.ID, f.adminA)
	if !assert.NoError(t, err) {
		return
	}
	if assert.Len(t, res.Failed, 1) {
		assert.Equal(t, bad.ID, res.Failed[0].RecipientID)
		assert.Equal(t, bad.Email, res.Failed[0].Email)
		assert.Contains(t, res.Failed[0].Error, "disk full")
	}
	assert.Len(t, res.Paths, 3)

	got, err := f.CertSvc.Get(ctx, cert.ID, f.adminA)
	if !assert.NoError(t, err) {
		return
	}
	for _, format := range certificate.AllFormats {
		assert.Equal(t, res.Paths[format], got.ArtifactPath(format).String)
		for _, r := range got.Recipients {
			rc, err := f.Store.Open(ctx, path.Join(res.Paths[format], r.ID+"."+string(format)))
			if r.ID == bad.ID {
				assert.Equal(t, certificate.ErrArtifactNotFound, errors.Cause(err), "%s %s", format, r.ID)
				continue
			}
			if assert.NoError(t, err, "%s %s", format, r.ID) {
				_ = rc.Close()
			}
		}
	}
}

func TestService_Generate_nothingProduced(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cert := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 2))

	svc := certificate.NewService(certificate.ServiceDeps{
		Repo:          inmemdb.NewCertificateRepository(f.DB),
		Templates:     f.Templates,
		Organizations: f.Orgs,
		Store:         flakyStore{ArtifactStore: f.Store, failFor: cert.ID},
		Mailer:        f.Mailer,
		Validate:      f.Validate,
		Logger:        f.Logger,
		Conf:          f.Conf,
	})

	_, err := svc.Generate(ctx, cert.ID, f.adminA)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "disk full")
	}
	got, err := f.CertSvc.Get(ctx, cert.ID, f.adminA)
	if assert.NoError(t, err) {
		for _, format := range certificate.AllFormats {
			assert.False(t, got.ArtifactPath(format).Valid)
		}
	}
}

func TestService_AttachArtifact(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cert := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 1))

	for i := 0; i < 2; i++ {
		assert.NoError(t, f.CertSvc.AttachArtifact(ctx, cert.ID, certificate.FormatPDF, "certificates/x/pdf"))
	}
	got, err := f.CertSvc.Get(ctx, cert.ID, f.adminA)
	if assert.NoError(t, err) {
		assert.Equal(t, "certificates/x/pdf", got.SecurePdfPath.String)
		assert.False(t, got.SecurePngPath.Valid)
	}

	err = f.CertSvc.AttachArtifact(ctx, cert.ID, certificate.Format("gif"), "x")
	assert.Equal(t, []string{"format"}, fieldNames(t, err))

	err = f.CertSvc.AttachArtifact(ctx, "nope", certificate.FormatPDF, "x")
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))
}

func TestService_Download(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cert := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 2))
	r2 := cert.Recipients[1]

	read := func(art certificate.Artifact) string {
		t.Helper()
		defer art.Content.Close()
		b, err := io.ReadAll(art.Content)
		if err != nil {
			t.Fatalf("reading artifact: %v", err)
		}
		return string(b)
	}

	t.Run("link holders get a transient rendering", func(t *testing.T) {
		art, err := f.CertSvc.Download(ctx, cert.ID, "", certificate.FormatHTML, f.linkCaller(cert, r2.ID))
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "text/html; charset=utf-8", art.ContentType)
		assert.Contains(t, read(art), r2.Name)

		got, err := f.CertSvc.Get(ctx, cert.ID, f.adminA)
		if assert.NoError(t, err) {
			assert.False(t, got.SecureHTMLPath.Valid)
		}
		_, err = f.Store.Open(ctx, path.Join("certificates", cert.ID, "html", r2.ID+".html"))
		assert.Equal(t, certificate.ErrArtifactNotFound, errors.Cause(err))
	})

	t.Run("admins render on demand and keep the artifact", func(t *testing.T) {
		art, err := f.CertSvc.Download(ctx, cert.ID, r2.ID, certificate.FormatHTML, f.adminA)
		if !assert.NoError(t, err) {
			return
		}
		assert.Contains(t, read(art), r2.Name)

		got, err := f.CertSvc.Get(ctx, cert.ID, f.adminA)
		if assert.NoError(t, err) {
			assert.Equal(t, path.Join("certificates", cert.ID, "html"), got.SecureHTMLPath.String)
		}
		rc, err := f.Store.Open(ctx, path.Join("certificates", cert.ID, "html", r2.ID+".html"))
		if assert.NoError(t, err) {
			rc.Close()
		}
	})

	t.Run("admin picks the recipient", func(t *testing.T) {
		art, err := f.CertSvc.Download(ctx, cert.ID, r2.ID, certificate.FormatPDF, f.adminA)
		if assert.NoError(t, err) {
			assert.Contains(t, read(art), certificate.PDFText(r2.Name))
		}
	})

	t.Run("link holders only get their own", func(t *testing.T) {
		art, err := f.CertSvc.Download(ctx, cert.ID, cert.Recipients[0].ID, certificate.FormatHTML, f.linkCaller(cert, r2.ID))
		if assert.NoError(t, err) {
			assert.Contains(t, read(art), r2.Name)
		}
	})

	t.Run("unknown recipient", func(t *testing.T) {
		_, err := f.CertSvc.Download(ctx, cert.ID, "nope", certificate.FormatPDF, f.adminA)
		assert.Equal(t, certificate.ErrArtifactNotFound, errors.Cause(err))
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := f.CertSvc.Download(ctx, cert.ID, "", certificate.Format("gif"), f.adminA)
		assert.Equal(t, certificate.ErrArtifactNotFound, errors.Cause(err))
	})

	t.Run("admin of another org", func(t *testing.T) {
		_, err := f.CertSvc.Download(ctx, cert.ID, "", certificate.FormatPDF, f.adminB)
		assert.Equal(t, certificate.ErrForbidden, errors.Cause(err))
	})
}

func TestService_SetPublished(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cert := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 1))

	got, err := f.CertSvc.SetPublished(ctx, cert.ID, true, f.adminA)
	if assert.NoError(t, err) {
		assert.True(t, got.Published)
	}
	got, err = f.CertSvc.Get(ctx, cert.ID, f.superAdmin)
	if assert.NoError(t, err) {
		assert.True(t, got.Published)
		assert.Len(t, got.Recipients, 1)
	}

	_, err = f.CertSvc.SetPublished(ctx, cert.ID, false, f.adminB)
	assert.Equal(t, certificate.ErrForbidden, errors.Cause(err))
}

func TestService_RevokeLinks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cert := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 1))
	holder := f.linkCaller(cert, cert.Recipients[0].ID)

	_, err := f.CertSvc.Get(ctx, cert.ID, holder)
	assert.NoError(t, err)

	assert.Equal(t, certificate.ErrForbidden, errors.Cause(f.CertSvc.RevokeLinks(ctx, cert.ID, f.adminB)))
	assert.NoError(t, f.CertSvc.RevokeLinks(ctx, cert.ID, f.adminA))

	_, err = f.CertSvc.Get(ctx, cert.ID, holder)
	assert.Equal(t, certificate.ErrUnauthorized, errors.Cause(err))

	// links issued after revocation work
	fresh, err := f.CertSvc.Get(ctx, cert.ID, f.adminA)
	if assert.NoError(t, err) {
		_, err = f.CertSvc.Get(ctx, cert.ID, f.linkCaller(fresh, fresh.Recipients[0].ID))
		assert.NoError(t, err)
	}
}

func TestService_Delete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cert := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 2))
	holder := f.linkCaller(cert, cert.Recipients[0].ID)

	res, err := f.CertSvc.Generate(ctx, cert.ID, f.adminA)
	if !assert.NoError(t, err) {
		return
	}

	assert.Equal(t, certificate.ErrForbidden, errors.Cause(f.CertSvc.Delete(ctx, cert.ID, f.adminB)))
	assert.Equal(t, certificate.ErrUnauthorized, errors.Cause(f.CertSvc.Delete(ctx, cert.ID, holder)))
	assert.NoError(t, f.CertSvc.Delete(ctx, cert.ID, f.adminA))

	_, err = f.CertSvc.Get(ctx, cert.ID, f.adminA)
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))

	// issued links stop working, without telling whether the certificate existed
	_, err = f.CertSvc.Get(ctx, cert.ID, holder)
	assert.Equal(t, certificate.ErrUnauthorized, errors.Cause(err))

	_, err = f.Store.Open(ctx, res.Paths[certificate.FormatPDF]+"/"+cert.Recipients[0].ID+".pdf")
	assert.Equal(t, certificate.ErrArtifactNotFound, errors.Cause(err))

	assert.Equal(t, certificate.ErrNotFound, errors.Cause(f.CertSvc.Delete(ctx, cert.ID, f.adminA)))
}

func TestService_Templates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.CreateTemplate(t, f.Templates, "orgb-only", f.orgB.ID, testutil.ClassicLayout)

	tmplIDs := func(caller certificate.Caller) []string {
		tmpls, err := f.CertSvc.ListTemplates(ctx, caller)
		if !assert.NoError(t, err) {
			return nil
		}
		ids := make([]string, 0, len(tmpls))
		for _, tmpl := range tmpls {
			ids = append(ids, tmpl.ID)
		}
		return ids
	}
	assert.ElementsMatch(t, []string{"classic"}, tmplIDs(f.adminA))
	assert.ElementsMatch(t, []string{"classic", "orgb-only"}, tmplIDs(f.adminB))
	assert.ElementsMatch(t, []string{"classic", "orgb-only"}, tmplIDs(f.superAdmin))

	_, err := f.CertSvc.ListTemplates(ctx, f.member)
	assert.Equal(t, certificate.ErrForbidden, errors.Cause(err))

	_, err = f.CertSvc.ResolveTemplate(ctx, "orgb-only", f.adminA)
	assert.Equal(t, certificate.ErrForbidden, errors.Cause(err))
	_, err = f.CertSvc.ResolveTemplate(ctx, "nope", f.adminA)
	assert.Equal(t, certificate.ErrTemplateNotFound, errors.Cause(err))

	doc, err := f.CertSvc.Preview(ctx, "classic", certificate.Fields{certificate.FieldRecipientName: "Grace Hopper"}, f.adminA)
	if assert.NoError(t, err) {
		assert.Contains(t, string(doc), "Grace Hopper")
		assert.Contains(t, string(doc), "OrgA")
	}
}

func TestService_linkURLs(t *testing.T) {
	f := setup(t)
	cert := testutil.CreateCertificate(t, f.CertSvc, f.adminA, testutil.NewCertificate("OrgA", 1))
	rid := cert.Recipients[0].ID

	link, err := f.CertSvc.Links().IssueDownloadLink(cert, rid, certificate.FormatPNG)
	if !assert.NoError(t, err) {
		return
	}
	u, err := url.Parse(link)
	if assert.NoError(t, err) {
		assert.Equal(t, "/v1/certificates/"+cert.ID+"/png", u.Path)
		caller := certificate.Caller{Link: &certificate.LinkClaims{RecipientID: u.Query().Get("r"), Token: u.Query().Get("t")}}
		_, err = f.CertSvc.Get(context.Background(), cert.ID, caller)
		assert.NoError(t, err)
	}
}
