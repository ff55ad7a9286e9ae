package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
)

type certificateRepository struct {
	db *DB
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db *DB) *certificateRepository {
	return &certificateRepository{db: db}
}

func copyCert(cert certificate.Certificate) certificate.Certificate {
	cert.Recipients = append([]certificate.Recipient(nil), cert.Recipients...)
	return cert
}

func (repo *certificateRepository) CreateCertificate(_ context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cert.ID = uuid.New().String()
	cert = copyCert(cert)
	for i := range cert.Recipients {
		cert.Recipients[i].ID = uuid.New().String()
		cert.Recipients[i].CertificateID = cert.ID
		cert.Recipients[i].Position = i
	}
	repo.db.seq++
	repo.db.order[cert.ID] = repo.db.seq
	repo.db.certificates[cert.ID] = &cert
	return copyCert(cert), nil
}

func (repo *certificateRepository) GetCertificateByID(_ context.Context, id string) (certificate.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cert, ok := repo.db.certificates[id]; ok {
		return copyCert(*cert), nil
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) QueryCertificates(_ context.Context, filter certificate.QueryFilter, ordering ...core.DBOrdering) ([]certificate.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	certs := make([]certificate.Certificate, 0, len(repo.db.certificates))
	for _, cert := range repo.db.certificates {
		if filter.IssuedFrom != "" && cert.IssuedFrom != filter.IssuedFrom {
			continue
		}
		if filter.Published != nil && cert.Published != *filter.Published {
			continue
		}
		certs = append(certs, copyCert(*cert))
	}

	// newest first, unless told otherwise
	sort.SliceStable(certs, func(i, j int) bool {
		return repo.db.order[certs[i].ID] > repo.db.order[certs[j].ID]
	})
	for k := len(ordering) - 1; k >= 0; k-- {
		ord := ordering[k]
		sort.SliceStable(certs, func(i, j int) bool {
			c := compareField(certs[i], certs[j], ord.Field)
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		})
	}
	return certs, nil
}

func compareField(a, b certificate.Certificate, field string) int {
	switch field {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "issued_from":
		return strings.Compare(a.IssuedFrom, b.IssuedFrom)
	case "issued_date":
		return a.IssuedDate.Compare(b.IssuedDate)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "published":
		switch {
		case a.Published == b.Published:
			return 0
		case a.Published:
			return 1
		}
		return -1
	}
	return 0
}

func (repo *certificateRepository) UpdateCertificate(_ context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.certificates[cert.ID]
	if !ok {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	// recipients & artifact paths are not updated here
	orig.Title = cert.Title
	orig.Description = cert.Description
	orig.Published = cert.Published
	orig.LinkSalt = cert.LinkSalt
	orig.UpdatedAt = cert.UpdatedAt
	return copyCert(*orig), nil
}

func (repo *certificateRepository) SetArtifactPath(_ context.Context, id string, f certificate.Format, path string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cert, ok := repo.db.certificates[id]
	if !ok {
		return certificate.ErrNotFound
	}
	cert.SetArtifactPath(f, path)
	return nil
}

func (repo *certificateRepository) DeleteCertificate(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.certificates[id]; !ok {
		return certificate.ErrNotFound
	}
	delete(repo.db.certificates, id)
	delete(repo.db.order, id)
	return nil
}
