package tangguh

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the minimal structured logging interface used for debug output.
// Key/value pairs follow the message, alternating key then value.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SimpleLogger writes key=value lines via the standard library logger.
type SimpleLogger struct {
	l *log.Logger
}

// NewSimpleLogger creates a console logger on stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{l: log.New(os.Stderr, "tangguh ", log.LstdFlags|log.Lmsgprefix)}
}

func (s *SimpleLogger) Debug(msg string, kv ...any) { s.print("DEBUG", msg, kv) }
func (s *SimpleLogger) Info(msg string, kv ...any)  { s.print("INFO", msg, kv) }
func (s *SimpleLogger) Warn(msg string, kv ...any)  { s.print("WARN", msg, kv) }
func (s *SimpleLogger) Error(msg string, kv ...any) { s.print("ERROR", msg, kv) }

func (s *SimpleLogger) print(level, msg string, kv []any) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	s.l.Print(b.String())
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	l zerolog.Logger
}

// NewZerologLogger creates a zerolog-backed logger writing to w.
func NewZerologLogger(w io.Writer) *ZerologLogger {
	return &ZerologLogger{l: zerolog.New(w).With().Timestamp().Logger()}
}

// WrapZerolog adapts an existing zerolog.Logger.
func WrapZerolog(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{l: l}
}

func (z *ZerologLogger) Debug(msg string, kv ...any) { emit(z.l.Debug(), msg, kv) }
func (z *ZerologLogger) Info(msg string, kv ...any)  { emit(z.l.Info(), msg, kv) }
func (z *ZerologLogger) Warn(msg string, kv ...any)  { emit(z.l.Warn(), msg, kv) }
func (z *ZerologLogger) Error(msg string, kv ...any) { emit(z.l.Error(), msg, kv) }

func emit(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		ev = ev.Interface(fmt.Sprint(kv[i]), kv[i+1])
	}
	ev.Msg(msg)
}
