package util

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const RequestIDHttpHeader = "X-Request-ID"

type requestIDContextKey struct{}

var ctxKeyRequestID = requestIDContextKey{}

// GetRequestID returns the request id carried in ctx, or "" if none was set.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// WithRequestID attaches id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// WithNewRequestID attaches a freshly generated request id to ctx, returning
// both the derived context and the id, so callers can log it up front.
func WithNewRequestID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// SetRequestIDHeader stamps req with the request id carried in ctx, generating
// one first if ctx doesn't already carry one. Every C1 operation calls this
// so a remote node's access log can be correlated back to the sweep that
// triggered it.
func SetRequestIDHeader(req *http.Request, ctx context.Context) context.Context {
	id := GetRequestID(ctx)
	if id == "" {
		ctx, id = WithNewRequestID(ctx)
	}
	req.Header.Set(RequestIDHttpHeader, id)
	return ctx
}
