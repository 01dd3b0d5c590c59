package jdiff

// Registration is a deferred hook registration. Packages that know how to
// render their own types expose values of this type so callers opt in
// explicitly instead of relying on import side-effects (init functions).
//
// For example, in a package "money":
//
//	var Amount = jdiff.NewEncoder(func(a Amount) string { return a.Format() })
//
// Usage:
//
//	c, _ := jdiff.New(jdiff.WithRegistrations(money.Amount /* , other hooks... */))
//
// This keeps dependencies explicit and avoids global mutation at import time.
type Registration func(r *Registry) error

// NewEncoder wraps fn into a Registration so that dependent packages can
// expose typed hooks without performing side effects at import time.
func NewEncoder[T, R any](fn func(T) R) Registration {
	return func(r *Registry) error {
		return r.Register(fn)
	}
}

// Group groups multiple registrations into one. This allows fluent usage
// without variadic expansion, e.g.:
//
//	jdiff.Apply(r, jdiff.Group(jdiff.DurationEncoder, jdiff.IPEncoder), otherEncoder)
//
// or with the stdlib helper:
//
//	jdiff.Apply(r, jdiff.Stdlib(), otherEncoder)
func Group(regs ...Registration) Registration {
	return func(r *Registry) error { return Apply(r, regs...) }
}

// Apply applies one or more registrations to an existing registry. Stops at
// the first error and returns it.
func Apply(r *Registry, regs ...Registration) error {
	for _, reg := range regs {
		if err := reg(r); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry constructs a new registry and applies the provided registrations.
func NewRegistry(regs ...Registration) (*Registry, error) {
	r := newRegistry()
	if err := Apply(r, regs...); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error. It is meant for
// package-level variables built from known-good registrations.
func MustNewRegistry(regs ...Registration) *Registry {
	r, err := NewRegistry(regs...)
	if err != nil {
		panic(err)
	}
	return r
}
