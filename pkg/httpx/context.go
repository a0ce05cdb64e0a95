package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID         ctxKey = "user_id"
	CtxKeyOrganisationID ctxKey = "organisation_id"
)

// WithPrincipal records the authorised user and organisation on the context
// so per-user rate limiting and logging can see them.
func WithPrincipal(ctx context.Context, userID, organisationID string) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, userID)
	return context.WithValue(ctx, CtxKeyOrganisationID, organisationID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyUserID).(string)
	return v, ok && v != ""
}

func OrganisationIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyOrganisationID).(string)
	return v, ok && v != ""
}
