// Package permission tracks which connector methods each origin has been
// granted. Grants only accumulate; there is no revocation.
package permission

import (
	"context"
	"slices"
	"sort"
	"time"
)

// Record is the grant set of one origin.
type Record struct {
	Methods   []string  `json:"methods"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ledger maps origin to its Record. A Ledger value is never modified in
// place; Grant returns a new one.
type Ledger map[string]Record

// Granted returns the methods origin holds, sorted.
func (l Ledger) Granted(origin string) []string {
	rec, ok := l[origin]
	if !ok {
		return nil
	}
	return slices.Clone(rec.Methods)
}

// Has reports whether origin holds method.
func (l Ledger) Has(origin, method string) bool {
	return slices.Contains(l[origin].Methods, method)
}

// Missing returns the methods in want that origin does not hold, in the
// order first seen and without duplicates.
func (l Ledger) Missing(origin string, want []string) []string {
	held := l[origin].Methods
	var missing []string
	for _, m := range want {
		if slices.Contains(held, m) || slices.Contains(missing, m) {
			continue
		}
		missing = append(missing, m)
	}
	return missing
}

// Grant returns a copy of l with methods added to origin's record. The
// record is created if absent and UpdatedAt is set to now.
func (l Ledger) Grant(origin string, methods []string, now time.Time) Ledger {
	next := make(Ledger, len(l)+1)
	for k, v := range l {
		next[k] = v
	}

	rec, ok := next[origin]
	if !ok {
		rec = Record{CreatedAt: now}
	}
	merged := slices.Clone(rec.Methods)
	for _, m := range methods {
		if !slices.Contains(merged, m) {
			merged = append(merged, m)
		}
	}
	sort.Strings(merged)

	rec.Methods = merged
	rec.UpdatedAt = now
	next[origin] = rec
	return next
}

// Clone returns a copy of l. Records share no slices with l.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		v.Methods = slices.Clone(v.Methods)
		out[k] = v
	}
	return out
}

// Controller asks the user whether origin may use methods and returns the
// subset that was granted. An empty result is a denial, not an error.
type Controller interface {
	RequestPermissions(ctx context.Context, origin string, methods []string) ([]string, error)
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(ctx context.Context, origin string, methods []string) ([]string, error)

func (f ControllerFunc) RequestPermissions(ctx context.Context, origin string, methods []string) ([]string, error) {
	return f(ctx, origin, methods)
}

// AllowAll grants everything it is asked for.
var AllowAll = ControllerFunc(func(_ context.Context, _ string, methods []string) ([]string, error) {
	return slices.Clone(methods), nil
})

// DenyAll grants nothing.
var DenyAll = ControllerFunc(func(context.Context, string, []string) ([]string, error) {
	return nil, nil
})

// Filter keeps the entries of answered that were actually offered. A prompt
// surface cannot grant more than it was asked about.
func Filter(offered, answered []string) []string {
	var out []string
	for _, m := range answered {
		if slices.Contains(offered, m) && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}
