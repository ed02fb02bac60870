package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// wrapperPackages are skipped when locating the real call site.
var wrapperPackages = []string{"github.com/sirupsen/logrus.", "energylink/logger."}

// callerHook points entry.Caller at the first frame outside logrus and the
// wrappers in this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *callerHook) Fire(entry *logrus.Entry) error {
	var pcs [24]uintptr
	n := runtime.Callers(4, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isWrapperFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isWrapperFrame(fn string) bool {
	for _, p := range wrapperPackages {
		if strings.HasPrefix(fn, p) {
			return true
		}
	}
	return false
}

const redacted = "[REDACTED]"

// sensitiveKeys are matched case-insensitively as substrings of field names.
var sensitiveKeys = []string{"token", "secret", "password", "api_key", "api-key", "apikey", "authorization"}

// redactHook masks credential-like fields so regulator tokens and API keys
// never reach log output.
type redactHook struct{}

func (h *redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *redactHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		if isSensitive(k) {
			entry.Data[k] = redacted
		}
	}
	return nil
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
