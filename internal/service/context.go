package service

import "context"

type contextKey string

const clientIPKey contextKey = "client_ip"

// WithClientIP attaches the originating client address for audit trails.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
