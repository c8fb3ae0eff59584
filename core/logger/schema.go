package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

// enumerations lists the attribute values accepted for closed-set keys.
// Keys with strict=true drop unknown values instead of passing them through.
var enumerations = map[string]struct {
	strict bool
	values map[string]struct{}
}{
	"status":  {values: set("ok", "fail", "skip", "retry", "rate_limited", "cancelled")},
	"outcome": {strict: true, values: set("ok", "fail", "cancelled", "rate_limited")},
}

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return strings.ToUpper(level)
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"operation",
	"state",
	"cb_key",
	"outcome",
	"duration_ms",
	"shipment_id",
	"from",
	"to",
	"actor",
	"count",
	"page",
	"pages",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"method",
	"path",
	"http_code",
	"db",
	"driver",
	"host",
	"topic",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
}
