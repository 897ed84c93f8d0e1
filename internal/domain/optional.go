package domain

// Optional carries a patch value that is either supplied or omitted.
// An omitted value keeps the stored field untouched.
type Optional[T any] struct {
	value T
	set   bool
}

// Some wraps a supplied value.
func Some[T any](value T) Optional[T] {
	return Optional[T]{value: value, set: true}
}

// None returns an omitted value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// IsSet reports whether a value was supplied.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// Value returns the supplied value, or the zero value when omitted.
func (o Optional[T]) Value() T {
	return o.value
}

// OrElse returns the supplied value or the fallback.
func (o Optional[T]) OrElse(fallback T) T {
	if o.set {
		return o.value
	}
	return fallback
}

// Apply overwrites target when a value was supplied.
func (o Optional[T]) Apply(target *T) {
	if o.set && target != nil {
		*target = o.value
	}
}
