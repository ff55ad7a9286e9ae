package sqlxrepos

import (
	"context"

	"github.com/lib/pq"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
)

const templateColumns = `id, name, description, organization_id, layout, required_fields`

type templateRow struct {
	certificate.Template
	RequiredFields pq.StringArray `db:"required_fields"`
}

func (row templateRow) toTemplate() certificate.Template {
	tmpl := row.Template
	tmpl.RequiredFields = []string(row.RequiredFields)
	return tmpl
}

type templateRepository struct {
	exec core.DBExecutor
}

var _ certificate.TemplateRepository = (*templateRepository)(nil) // interface compliance check

func NewTemplateRepository(exec core.DBExecutor) *templateRepository {
	return &templateRepository{exec: exec}
}

func (repo templateRepository) GetTemplateByID(ctx context.Context, id string) (certificate.Template, error) {
	var row templateRow
	q := `SELECT ` + templateColumns + ` FROM certificate_template WHERE id = $1`
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return certificate.Template{}, trapNoRowsErr(err, certificate.ErrTemplateNotFound, "finding template by ID")
	}
	return row.toTemplate(), nil
}

func (repo templateRepository) QueryTemplates(ctx context.Context) ([]certificate.Template, error) {
	var rows []templateRow
	q := `SELECT ` + templateColumns + ` FROM certificate_template ORDER BY name`
	if err := repo.exec.SelectContext(ctx, &rows, q); err != nil {
		return nil, dbError(err, "querying templates")
	}
	tmpls := make([]certificate.Template, 0, len(rows))
	for _, row := range rows {
		tmpls = append(tmpls, row.toTemplate())
	}
	return tmpls, nil
}
