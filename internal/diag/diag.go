// Package diag receives messages from the validation layer and forwards them
// to the structured logger. It only observes; nothing it does feeds back into
// the pipeline.
package diag

import (
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"golang.org/x/exp/slog"
)

// Level is the display class of a validation message.
type Level int

const (
	LevelInfo Level = iota
	LevelPerf
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarning:
		return "WARNING"
	case LevelPerf:
		return "PERF"
	default:
		return "INFO"
	}
}

// Classify maps a debug utils severity and message type onto a Level. Error
// severity always wins; performance messages are PERF whatever their
// severity.
func Classify(severity ext_debug_utils.DebugUtilsMessageSeverityFlags, msgType ext_debug_utils.DebugUtilsMessageTypeFlags) Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return LevelError
	case msgType&ext_debug_utils.TypePerformance != 0:
		return LevelPerf
	case severity&ext_debug_utils.SeverityWarning != 0:
		return LevelWarning
	}
	return LevelInfo
}

// ParseSeverities turns config names into the severity mask handed to the
// debug messenger.
func ParseSeverities(names []string) (ext_debug_utils.DebugUtilsMessageSeverityFlags, error) {
	var mask ext_debug_utils.DebugUtilsMessageSeverityFlags
	for _, name := range names {
		switch strings.ToLower(name) {
		case "error":
			mask |= ext_debug_utils.SeverityError
		case "warning":
			mask |= ext_debug_utils.SeverityWarning
		case "info":
			mask |= ext_debug_utils.SeverityInfo
		case "verbose":
			mask |= ext_debug_utils.SeverityVerbose
		default:
			return 0, errors.Newf("unknown validation severity %q", name)
		}
	}
	if mask == 0 {
		return 0, errors.New("no validation severities selected")
	}
	return mask, nil
}

// ParseLevel maps a config log level onto slog.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, errors.Newf("unknown log level %q", name)
}

// NewLogger builds the process logger. format is "text" or "json".
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, errors.Newf("unknown log format %q", format)
}

// Sink counts and logs validation messages. The driver may invoke the
// callback from its own threads.
type Sink struct {
	logger *slog.Logger

	mu     sync.Mutex
	counts map[Level]int
}

func NewSink(logger *slog.Logger) *Sink {
	return &Sink{
		logger: logger,
		counts: make(map[Level]int),
	}
}

// Callback has the shape expected by DebugUtilsMessengerCreateInfo.UserCallback.
// It always returns false so the triggering call is never aborted.
func (s *Sink) Callback(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	var message string
	if data != nil {
		message = data.Message
	}
	s.Record(Classify(severity, msgType), message)
	return false
}

// Record logs one message at the given level.
func (s *Sink) Record(level Level, message string) {
	s.mu.Lock()
	s.counts[level]++
	s.mu.Unlock()

	attrs := []any{slog.String("class", level.String())}
	switch level {
	case LevelError:
		s.logger.Error(message, attrs...)
	case LevelWarning, LevelPerf:
		s.logger.Warn(message, attrs...)
	default:
		s.logger.Info(message, attrs...)
	}
}

// Count returns how many messages of a level have been seen.
func (s *Sink) Count(level Level) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[level]
}
