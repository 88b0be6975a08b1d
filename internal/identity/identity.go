// Package identity resolves bearer credentials into the caller identity the
// rest of the pipeline operates on. Handlers never touch raw tokens.
package identity

import "context"

// Identity is the authenticated caller. SubjectID is the stable opaque
// identifier used for ownership checks; DisplayLabel is what gets attributed
// on published posts.
type Identity struct {
	SubjectID    string
	DisplayLabel string
}

// AnonymousLabel is attributed when a token carries no usable display claim.
const AnonymousLabel = "Anonymous"

// Verifier turns a raw bearer token into an Identity or rejects it.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
