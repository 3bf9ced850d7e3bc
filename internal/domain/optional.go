package domain

// Optional is a value that starts unset and may be set later.
// Reading an unset Optional returns ErrNotReady instead of a zero value.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// Get returns the value, or ErrNotReady if it was never set.
func (o Optional[T]) Get() (T, error) {
	if !o.set {
		var zero T
		return zero, ErrNotReady
	}
	return o.value, nil
}

// OrElse returns the value, or fallback when unset.
func (o Optional[T]) OrElse(fallback T) T {
	if !o.set {
		return fallback
	}
	return o.value
}

// Ptr returns a pointer to a copy of the value, or nil when unset.
// Useful for snapshot fields that are omitted until known.
func (o Optional[T]) Ptr() *T {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}
