// Package provider verifies login proofs issued by third parties.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

var (
	// ErrUnavailable means the provider could not be reached or answered
	// with something other than a key set. Retrying may help.
	ErrUnavailable = errors.New("provider: unavailable")

	// ErrInvalidAssertion means the proof itself was rejected.
	ErrInvalidAssertion = errors.New("provider: invalid assertion")

	ErrUnsupported = errors.New("provider: unsupported")
)

// Verifier checks a provider assertion and extracts the identity behind it.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, assertion string) (domain.Assertion, error)
}

// Registry looks verifiers up by provider name.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry registers each verifier under its Name. Nil entries are
// skipped so unconfigured providers can be passed straight through.
func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{verifiers: make(map[string]Verifier)}
	for _, v := range verifiers {
		if v == nil {
			continue
		}
		r.verifiers[v.Name()] = v
	}
	return r
}

func (r *Registry) Get(name string) (Verifier, error) {
	if v, ok := r.verifiers[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
}
