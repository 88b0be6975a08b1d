// Package classifier wraps the external content-classification capability
// behind a narrow two-field contract so the decision engine stays
// deterministic and testable independent of the model's nondeterminism.
package classifier

import (
	"context"
	"errors"
)

// Verdict is the classifier's judgment on a piece of content. An empty Reason
// on a violating verdict means "no reason given", never "not violating".
type Verdict struct {
	Violating bool   `json:"violating"`
	Reason    string `json:"reason"`
}

// Gateway classifies text content. Implementations make at most one outbound
// call per invocation and retain no state between calls.
type Gateway interface {
	Classify(ctx context.Context, content string) (Verdict, error)
}

// Gateway failures, distinguished so the engine can apply its failure policy.
var (
	// ErrUnavailable indicates a transport or timeout failure reaching the
	// external model.
	ErrUnavailable = errors.New("classifier unavailable")

	// ErrMalformedResponse indicates the external response could not be
	// parsed into a Verdict.
	ErrMalformedResponse = errors.New("classifier returned a malformed response")
)

// PermitAll is a Gateway that accepts everything. It backs deployments that
// disable moderation entirely; the engine itself never branches on whether
// moderation is "really" on.
type PermitAll struct{}

// Classify always returns a non-violating verdict.
func (PermitAll) Classify(_ context.Context, _ string) (Verdict, error) {
	return Verdict{}, nil
}
