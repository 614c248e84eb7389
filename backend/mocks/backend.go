package mocks

import (
	"context"

	"github.com/stokaro/treemig/backend"
)

// Backend hands out mock sessions.
type Backend struct {
	// DialectName selects the dialect, defaults to cassandra.
	DialectName string
	// NamespaceName is returned by Namespace.
	NamespaceName string
	// NewSession creates the session returned by Open; nil returns a fresh Session.
	NewSession func() *Session

	// Opened lists every session handed out.
	Opened []*Session
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Dialect() backend.Dialect {
	name := b.DialectName
	if name == "" {
		name = "cassandra"
	}
	d, err := backend.NewDialect(name)
	if err != nil {
		panic(err)
	}
	return d
}

func (b *Backend) Namespace() string { return b.NamespaceName }

func (b *Backend) Open(context.Context) (backend.Session, error) {
	s := &Session{}
	if b.NewSession != nil {
		s = b.NewSession()
	}
	b.Opened = append(b.Opened, s)
	return s, nil
}

func (b *Backend) Close() error { return nil }
