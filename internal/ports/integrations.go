package ports

import "context"

// AccessGrantor adds a principal as a read-only collaborator to every
// configured repository. Already-applied grants are not reverted when a
// later one fails.
type AccessGrantor interface {
	Grant(ctx context.Context, principal string) error
}

// CredentialIssuer mints a scoped, time-limited registry pull token for a
// principal. Every call produces a new, distinct credential.
type CredentialIssuer interface {
	Issue(ctx context.Context, principal string) (string, error)
}

// Notifier delivers the granted access details and credential to a
// recipient. Exactly one attempt per invocation.
type Notifier interface {
	Notify(ctx context.Context, recipient, principal, credential string) error
}
