//go:build !manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library. When the "manifold" build tag is not set, this stub
// package is compiled instead, returning an error from New().
//
// Build with: go build -tags=manifold
package manifold

import (
	"github.com/qutlas/cadmium/pkg/kernel"
)

// ManifoldKernel is unavailable without the manifold build tag. It only
// exists so callers type-check against both builds.
type ManifoldKernel struct {
	kernel.Kernel
}

// New returns an error indicating Manifold is not available.
// Build with -tags=manifold to enable.
func New() (*ManifoldKernel, error) {
	return nil, kernel.Errorf(kernel.KindInternal, "", "manifold kernel not available: build with -tags=manifold")
}
