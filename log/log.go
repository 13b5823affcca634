// Package log provides leveled loggers shared by the product-ingestor
// commands and packages.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Loggers for every supported level. They are enabled or disabled by
// [SetLevel].
var (
	Debug = log.New(io.Discard, "DEBUG: ", log.LstdFlags|log.Lmsgprefix)
	Info  = log.New(os.Stderr, "INFO: ", log.LstdFlags|log.Lmsgprefix)
	Error = log.New(os.Stderr, "ERROR: ", log.LstdFlags|log.Lmsgprefix)
)

var levels = map[string]int{
	"debug":    0,
	"info":     1,
	"error":    2,
	"disabled": 3,
}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	curLvl           = levels["info"]
)

// SetLevel sets the log level. Valid levels are "debug", "info", "error" and
// "disabled".
func SetLevel(level string) error {
	lvl, ok := levels[level]
	if !ok {
		return fmt.Errorf("invalid log level %q", level)
	}

	mu.Lock()
	defer mu.Unlock()

	curLvl = lvl
	apply()
	return nil
}

// SetOutput sets the destination of the enabled loggers.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	out = w
	apply()
}

// apply must be called with mu held.
func apply() {
	for lvl, l := range []*log.Logger{Debug, Info, Error} {
		if lvl < curLvl {
			l.SetOutput(io.Discard)
			continue
		}
		l.SetOutput(out)
	}
}

// Fatalf logs an error message and calls os.Exit(1).
func Fatalf(format string, v ...any) {
	Error.Printf(format, v...)
	os.Exit(1)
}
