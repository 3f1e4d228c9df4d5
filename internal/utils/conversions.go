package utils

// ValueAs returns v as a T, or the zero T when v is nil or holds another type.
// Session values come back as any, and a mistyped one reads as absent.
func ValueAs[T any](v any) T {
	t, _ := v.(T)
	return t
}
