package ingress

import "context"

type sourceKey struct{}

// WithSource records the caller address for log and error context.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFromContext returns the caller address recorded by WithSource.
func SourceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(sourceKey{}).(string)
	return s
}
