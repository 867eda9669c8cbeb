package logger

import (
	"context"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base *zap.Logger
	once sync.Once
)

// New builds the process logger once. Production gets JSON output, every other
// environment the colored console encoder. level overrides the default level.
func New(env, level string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		if level != "" {
			var parsed zapcore.Level
			if err = parsed.UnmarshalText([]byte(level)); err != nil {
				return
			}
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
		base, err = cfg.Build()
	})
	return base, err
}

type requestIDKey struct{}

// WithRequestID stores the correlation id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ForRequest decorates log with the request and trace ids carried by ctx.
func ForRequest(ctx context.Context, log *zap.Logger) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if ctx == nil {
		return log
	}
	fields := make([]zap.Field, 0, 2)
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	return log.With(fields...)
}

// MaskEmail keeps up to three leading characters of the local part and the domain:
// john.doe@example.com becomes joh***@example.com.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	if len(local) > 3 {
		local = local[:3]
	}
	return local + "***@" + domain
}

// MaskIP drops the host part of an address: the last two octets of IPv4, the last
// four groups of IPv6.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "***"
	}
	if addr.Is4() || addr.Is4In6() {
		octets := addr.Unmap().As4()
		return strconv.Itoa(int(octets[0])) + "." + strconv.Itoa(int(octets[1])) + ".*.*"
	}
	groups := strings.Split(addr.StringExpanded(), ":")
	return strings.Join(groups[:4], ":") + ":*:*:*:*"
}
