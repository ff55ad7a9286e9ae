package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/sanaa/core/certificate"
)

type TemplateRepository struct {
	db *DB
}

var _ certificate.TemplateRepository = (*TemplateRepository)(nil) // interface compliance check

func NewTemplateRepository(db *DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// CreateTemplate is only used to seed tests; templates are authored elsewhere.
func (repo *TemplateRepository) CreateTemplate(_ context.Context, tmpl certificate.Template) (certificate.Template, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tmpl.RequiredFields = append([]string(nil), tmpl.RequiredFields...)
	repo.db.templates[tmpl.ID] = &tmpl
	return tmpl, nil
}

func (repo *TemplateRepository) GetTemplateByID(_ context.Context, id string) (certificate.Template, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if tmpl, ok := repo.db.templates[id]; ok {
		return *tmpl, nil
	}
	return certificate.Template{}, certificate.ErrTemplateNotFound
}

func (repo *TemplateRepository) QueryTemplates(_ context.Context) ([]certificate.Template, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tmpls := make([]certificate.Template, 0, len(repo.db.templates))
	for _, tmpl := range repo.db.templates {
		tmpls = append(tmpls, *tmpl)
	}
	sort.Slice(tmpls, func(i, j int) bool { return tmpls[i].Name < tmpls[j].Name })
	return tmpls, nil
}
