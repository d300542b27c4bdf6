package gpucmd

import "github.com/prometheus/client_golang/prometheus"

// ContextOption configures a Context during creation.
//
// Example:
//
//	ctx, err := gpucmd.New(dev,
//	    gpucmd.WithValidation(false),
//	    gpucmd.WithMetrics(prometheus.DefaultRegisterer))
type ContextOption func(*contextOptions)

// contextOptions holds optional configuration for Context creation.
type contextOptions struct {
	validation      bool
	registerer      prometheus.Registerer
	shaderCacheSize int
}

// defaultShaderCacheSize bounds the number of reflected shader modules kept.
const defaultShaderCacheSize = 64

// defaultOptions returns the default context options.
func defaultOptions() contextOptions {
	return contextOptions{
		validation:      true,
		shaderCacheSize: defaultShaderCacheSize,
	}
}

// WithValidation turns binding validation on or off. With validation on
// (the default), binding data with an unwritten slot fails with
// ErrIncompleteBinding. With validation off, unwritten plain slots are
// zero filled and unwritten resource slots are left empty.
func WithValidation(enabled bool) ContextOption {
	return func(o *contextOptions) {
		o.validation = enabled
	}
}

// WithMetrics registers the context's Prometheus collectors with r.
// Without it, the context records no metrics.
func WithMetrics(r prometheus.Registerer) ContextOption {
	return func(o *contextOptions) {
		o.registerer = r
	}
}

// WithShaderCacheSize sets how many reflected shader modules are cached by
// source hash. Values below 1 keep the default.
func WithShaderCacheSize(n int) ContextOption {
	return func(o *contextOptions) {
		if n > 0 {
			o.shaderCacheSize = n
		}
	}
}
