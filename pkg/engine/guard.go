package engine

// noCopy triggers a go vet warning when a value embedding it is copied.
// Guards and scratch handles have exactly one restoring owner.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Pushed temporarily overrides a settable field, restoring the prior
// value when Restore is called. The usual pattern is
//
//	defer engine.Push(&ctx.PointerMode, engine.PointerModeHost).Restore()
//
// so the override holds for the rest of the enclosing call, including
// early error returns. Restore is idempotent; copying a Pushed is a vet
// error.
type Pushed[T any] struct {
	noCopy noCopy

	target *T
	old    T
}

// Push stores the field's current value, overwrites it with value, and
// returns the guard that will undo the override.
func Push[T any](target *T, value T) *Pushed[T] {
	p := &Pushed[T]{target: target, old: *target}
	*target = value
	return p
}

// Old returns the value the field held before the override.
func (p *Pushed[T]) Old() T {
	return p.old
}

// Restore writes the prior value back. Subsequent calls are no-ops, so a
// guard may be restored early and still be safely deferred.
func (p *Pushed[T]) Restore() {
	if p.target != nil {
		*p.target = p.old
		p.target = nil
	}
}
