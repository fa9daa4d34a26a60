package board

import "context"

type ctxKey int

const (
	authorKey ctxKey = iota
	tenantKey
)

// WithAuthor returns a context carrying the author recorded on new versions
func WithAuthor(ctx context.Context, author string) context.Context {
	return context.WithValue(ctx, authorKey, author)
}

// AuthorFrom returns the author carried by ctx, or ""
func AuthorFrom(ctx context.Context) string {
	author, _ := ctx.Value(authorKey).(string)
	return author
}

// WithTenant returns a context carrying the caller's tenant
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// TenantFrom returns the tenant carried by ctx, or ""
func TenantFrom(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey).(string)
	return tenant
}
