package common

import (
	"io"
	"log"
	"os"
	"time"
)

// Logger holds several logger instances with different prefixes
type Logger struct {
	Warn *log.Logger
	Info *log.Logger
	Err  *log.Logger
}

// GetNewLogger creates an instance of all needed loggers
func GetNewLogger() *Logger {
	return NewLogger(os.Stderr)
}

// NewLogger creates loggers writing to w
func NewLogger(w io.Writer) *Logger {
	return &Logger{
		Warn: log.New(w, "[ Warn ] ", log.LstdFlags|log.Lshortfile),
		Info: log.New(w, "[ Info ] ", log.LstdFlags|log.Lshortfile),
		Err:  log.New(w, "[ Error ] ", log.LstdFlags|log.Lshortfile),
	}
}

// NewDiscardLogger returns loggers which drop everything
func NewDiscardLogger() *Logger {
	return NewLogger(io.Discard)
}

// SetOutput redirects all the loggers to w
func (l *Logger) SetOutput(w io.Writer) {
	l.Warn.SetOutput(w)
	l.Info.SetOutput(w)
	l.Err.SetOutput(w)
}

// Timer logs the time taken by the named step when the returned func is called
func Timer(logger *Logger, name string) func() {
	start := time.Now()
	return func() {
		logger.Info.Printf("%s: elapsed time %v\n", name, time.Since(start))
	}
}
