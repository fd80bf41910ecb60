// Package ptr returns pointers to values, for optional fields in event
// payloads and records.
package ptr

// To returns a pointer to a copy of v.
func To[T any](v T) *T {
	return &v
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Int64 returns a pointer to i.
func Int64(i int64) *int64 {
	return &i
}

// Deref returns *p, or fallback when p is nil.
func Deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
