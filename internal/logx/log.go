package logx

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. webpuppet is a single-process gateway, so
// packages log through this one sink instead of threading a logger around.
var Log zerolog.Logger

// levelNames maps accepted level strings (lower-cased) to zerolog levels.
var levelNames = map[string]zerolog.Level{
	"all":      zerolog.TraceLevel,
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"fatal":    zerolog.FatalLevel,
	"none":     zerolog.Disabled,
	"off":      zerolog.Disabled,
	"disabled": zerolog.Disabled,
}

// Configure sets the global log level and rebuilds the logger. Unknown level
// strings fall back to info. Output is a console writer on stderr unless
// LOG_FORMAT=json is set; webpuppet usually runs in a terminal next to the
// browser it drives, so human-readable is the default.
func Configure(level string) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var w io.Writer = os.Stderr
	if os.Getenv("LOG_FORMAT") != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}
	Log = zerolog.New(w).With().Timestamp().Logger()
}

func init() {
	Configure(os.Getenv("LOG_LEVEL"))
}
