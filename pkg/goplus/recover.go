package goplus

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

const maxStackDepth = 32

// Recover logs a recovered panic with its call sites. It must be deferred
// directly.
func Recover() {
	r := recover()
	if r == nil {
		return
	}
	logger.Error().Str("panic", fmt.Sprint(r)).Str("stack", callers(3)).Msg("recovered from panic")
}

// Safe invokes fn and converts a panic into a logged event. It reports
// whether fn returned normally.
func Safe(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("panic", fmt.Sprint(r)).Str("stack", callers(3)).Msg("recovered from panic")
			ok = false
		}
	}()
	fn()
	return true
}

func callers(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+maxStackDepth; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fmt.Fprintf(&sb, "%s:%d\n", file, line)
	}
	return sb.String()
}
