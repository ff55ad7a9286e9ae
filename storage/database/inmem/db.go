package inmemdb

import (
	"sync"

	"github.com/trezcool/sanaa/core/certificate"
	"github.com/trezcool/sanaa/core/organization"
	"github.com/trezcool/sanaa/core/user"
)

// DB is an in-memory store, for tests and local experiments.
type DB struct {
	mutex         sync.RWMutex
	users         map[string]*user.User
	organizations map[string]*organization.Organization
	templates     map[string]*certificate.Template
	certificates  map[string]*certificate.Certificate
	seq           int // keeps insertion order of certificates
	order         map[string]int
}

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		organizations: make(map[string]*organization.Organization),
		templates:     make(map[string]*certificate.Template),
		certificates:  make(map[string]*certificate.Certificate),
		order:         make(map[string]int),
	}
}
