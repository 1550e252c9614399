// Package kit carries request-scoped metadata and transport helpers shared by
// the docforge HTTP and MCP surfaces.
package kit

import "context"

type contextKey string

const (
	SessionIDKey  contextKey = "kit_session_id"
	DocumentIDKey contextKey = "kit_document_id"
	TransportKey  contextKey = "kit_transport" // "http", "mcp"
	TraceIDKey    contextKey = "kit_trace_id"
	RemoteAddrKey contextKey = "kit_remote_addr"
)

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

func WithDocumentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, id)
}
func GetDocumentID(ctx context.Context) string {
	v, _ := ctx.Value(DocumentIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(RemoteAddrKey).(string)
	return v
}
