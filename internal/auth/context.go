package auth

import "context"

type contextKey string

const subjectKey contextKey = "auth_subject"

// WithSubject stores the authenticated user id in the context.
func WithSubject(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, subjectKey, userID)
}

// SubjectFromContext returns the authenticated user id, or empty string.
func SubjectFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(subjectKey).(string); ok {
		return id
	}
	return ""
}
