// Package authority names the external AuthorityOracle collaborator: all
// permission decisions are delegated to it. QueryPlane applies the gate
// before every read; PathTree applies it before every write.
package authority

import "context"

// Oracle answers read/write/delete permission questions for a principal
// against an object (a document, corpus or path, identified by the
// caller's own ID scheme — this core treats objectID as opaque).
type Oracle interface {
	CanRead(ctx context.Context, principal string, objectID string) (bool, error)
	CanWrite(ctx context.Context, principal string, objectID string) (bool, error)
	CanDelete(ctx context.Context, principal string, objectID string) (bool, error)
}

// AllowAll grants every request. Useful for tests and for single-tenant
// deployments where the Gateway has already authorized the caller.
type AllowAll struct{}

func (AllowAll) CanRead(context.Context, string, string) (bool, error)   { return true, nil }
func (AllowAll) CanWrite(context.Context, string, string) (bool, error)  { return true, nil }
func (AllowAll) CanDelete(context.Context, string, string) (bool, error) { return true, nil }

// DenyAll refuses every request. Useful for negative tests.
type DenyAll struct{}

func (DenyAll) CanRead(context.Context, string, string) (bool, error)   { return false, nil }
func (DenyAll) CanWrite(context.Context, string, string) (bool, error)  { return false, nil }
func (DenyAll) CanDelete(context.Context, string, string) (bool, error) { return false, nil }
