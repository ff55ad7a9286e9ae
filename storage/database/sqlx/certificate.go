package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
)

const certColumns = `id, title, description, issued_date, issued_from, organization_id, template_id, published,
	secure_pdf_path, secure_png_path, secure_html_path, link_salt, COALESCE(created_by::text, '') AS created_by,
	created_at, updated_at`

var (
	certOrderings = map[string]string{
		"title":       "title",
		"issued_from": "issued_from",
		"issued_date": "issued_date",
		"created_at":  "created_at",
		"published":   "published",
	}

	artifactColumns = map[certificate.Format]string{
		certificate.FormatPDF:  "secure_pdf_path",
		certificate.FormatPNG:  "secure_png_path",
		certificate.FormatHTML: "secure_html_path",
	}
)

type certificateRepository struct {
	db core.DB
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db core.DB) *certificateRepository {
	return &certificateRepository{db: db}
}

func (repo certificateRepository) CreateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	cert.ID = uuid.New().String()
	recipients := make([]certificate.Recipient, 0, len(cert.Recipients))
	for i, r := range cert.Recipients {
		r.ID = uuid.New().String()
		r.CertificateID = cert.ID
		r.Position = i
		recipients = append(recipients, r)
	}

	err := inTx(ctx, repo.db, func(tx core.DBTransactor) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO certificate (id, title, description, issued_date, issued_from, organization_id, template_id,
			published, link_salt, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, '')::uuid, $11, $12)`,
			cert.ID, cert.Title, cert.Description, cert.IssuedDate, cert.IssuedFrom, cert.OrganizationID, cert.TemplateID,
			cert.Published, cert.LinkSalt, cert.CreatedBy, cert.CreatedAt.UTC(), cert.UpdatedAt.UTC(),
		)
		if err != nil {
			return dbError(err, "inserting certificate")
		}
		if len(recipients) > 0 {
			_, err = sqlx.NamedExecContext(ctx, tx,
				`INSERT INTO certificate_recipient (id, certificate_id, position, name, email)
				VALUES (:id, :certificate_id, :position, :name, :email)`,
				recipients,
			)
			if err != nil {
				return dbError(err, "inserting recipients")
			}
		}
		return nil
	})
	if err != nil {
		return certificate.Certificate{}, err
	}
	cert.Recipients = recipients
	return cert, nil
}

func (repo certificateRepository) recipients(ctx context.Context, ids ...string) (map[string][]certificate.Recipient, error) {
	byCert := make(map[string][]certificate.Recipient, len(ids))
	if len(ids) == 0 {
		return byCert, nil
	}
	q, args, err := sqlx.In(
		`SELECT id, certificate_id, position, name, email FROM certificate_recipient
		WHERE certificate_id IN (?) ORDER BY certificate_id, position`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building recipients query")
	}
	var rows []certificate.Recipient
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, dbError(err, "querying recipients")
	}
	for _, r := range rows {
		byCert[r.CertificateID] = append(byCert[r.CertificateID], r)
	}
	return byCert, nil
}

func (repo certificateRepository) GetCertificateByID(ctx context.Context, id string) (certificate.Certificate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	var cert certificate.Certificate
	if err := repo.db.GetContext(ctx, &cert, `SELECT `+certColumns+` FROM certificate WHERE id = $1`, id); err != nil {
		return certificate.Certificate{}, trapNoRowsErr(err, certificate.ErrNotFound, "finding certificate by ID")
	}
	recipients, err := repo.recipients(ctx, cert.ID)
	if err != nil {
		return certificate.Certificate{}, err
	}
	cert.Recipients = recipients[cert.ID]
	return cert, nil
}

func (repo certificateRepository) QueryCertificates(ctx context.Context, filter certificate.QueryFilter, ordering ...core.DBOrdering) ([]certificate.Certificate, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.IssuedFrom != "" {
		args = append(args, filter.IssuedFrom)
		where = append(where, fmt.Sprintf("issued_from = $%d", len(args)))
	}
	if filter.Published != nil {
		args = append(args, *filter.Published)
		where = append(where, fmt.Sprintf("published = $%d", len(args)))
	}

	q := `SELECT ` + certColumns + ` FROM certificate`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderBy(ordering, certOrderings, "created_at DESC")

	var certs []certificate.Certificate
	if err := repo.db.SelectContext(ctx, &certs, q, args...); err != nil {
		return nil, dbError(err, "querying certificates")
	}

	ids := make([]string, 0, len(certs))
	for _, c := range certs {
		ids = append(ids, c.ID)
	}
	recipients, err := repo.recipients(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range certs {
		certs[i].Recipients = recipients[certs[i].ID]
	}
	if certs == nil {
		certs = []certificate.Certificate{}
	}
	return certs, nil
}

func (repo certificateRepository) UpdateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE certificate SET title = $2, description = $3, published = $4, link_salt = $5, updated_at = $6
		WHERE id = $1`,
		cert.ID, cert.Title, cert.Description, cert.Published, cert.LinkSalt, cert.UpdatedAt.UTC(),
	)
	if err != nil {
		return certificate.Certificate{}, dbError(err, "updating certificate")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	return repo.GetCertificateByID(ctx, cert.ID)
}

func (repo certificateRepository) SetArtifactPath(ctx context.Context, id string, f certificate.Format, path string) error {
	col, ok := artifactColumns[f]
	if !ok {
		return errors.Errorf("unknown artifact format %q", f)
	}
	res, err := repo.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE certificate SET %s = $2, updated_at = NOW() AT TIME ZONE 'utc' WHERE id = $1`, col),
		id, path,
	)
	if err != nil {
		return dbError(err, "setting artifact path")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return certificate.ErrNotFound
	}
	return nil
}

func (repo certificateRepository) DeleteCertificate(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return certificate.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM certificate WHERE id = $1`, id)
	if err != nil {
		return dbError(err, "deleting certificate")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return certificate.ErrNotFound
	}
	return nil
}
