package rpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/nainya/boardstore/pkg/board"
)

const (
	authorKey = "x-user-id"
	tenantKey = "x-tenant-id"
)

// outgoing copies author and tenant from ctx into request metadata
func outgoing(ctx context.Context) context.Context {
	var kv []string
	if a := board.AuthorFrom(ctx); a != "" {
		kv = append(kv, authorKey, a)
	}
	if t := board.TenantFrom(ctx); t != "" {
		kv = append(kv, tenantKey, t)
	}
	if len(kv) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

// Incoming returns ctx carrying the author and tenant sent by the client
func Incoming(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	if v := md.Get(authorKey); len(v) > 0 {
		ctx = board.WithAuthor(ctx, v[0])
	}
	if v := md.Get(tenantKey); len(v) > 0 {
		ctx = board.WithTenant(ctx, v[0])
	}
	return ctx
}
