package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// rateLimitImports is a huma middleware limiting dataset uploads per client IP.
// Returns 429 Too Many Requests when the limit is exceeded.
func (s *Server) rateLimitImports(ctx huma.Context, next func(huma.Context)) {
	if s.importLimiter == nil {
		next(ctx)
		return
	}

	key := clientIP(ctx.Header("X-Forwarded-For"), ctx.Header("X-Real-IP"), ctx.RemoteAddr())
	if !s.importLimiter.Allow(key) {
		s.logger.Warn("import rate limit exceeded", "ip", key, "path", ctx.URL().Path)
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "too many imports, try again later") //nolint:errcheck // Response already committed
		return
	}

	next(ctx)
}

// clientIP picks the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address without its port.
func clientIP(forwardedFor, realIP, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	if realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
