package unittest

import (
	"bytes"
	"flag"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var verbose = flag.Bool("vv", false, "print debugging logs")

// Logger returns a zerolog
// use -vv flag to print debugging logs for tests
func Logger() zerolog.Logger {
	writer := io.Discard
	if *verbose {
		writer = os.Stderr
	}
	return LoggerWithWriterAndLevel(writer, zerolog.DebugLevel)
}

// LoggerWithWriterAndLevel returns a timestamped logger writing JSON lines to
// the writer.
func LoggerWithWriterAndLevel(writer io.Writer, level zerolog.Level) zerolog.Logger {
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// LogCapture collects the log lines written by a logger for later inspection.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Count returns the number of captured lines containing the message.
func (c *LogCapture) Count(msg string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Count(c.buf.String(), `"message":"`+msg+`"`)
}

// Contains reports whether any captured line contains the fragment.
func (c *LogCapture) Contains(fragment string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Contains(c.buf.String(), fragment)
}

// CapturingLogger returns a debug level logger and the capture it writes to.
func CapturingLogger() (zerolog.Logger, *LogCapture) {
	capture := &LogCapture{}
	return LoggerWithWriterAndLevel(capture, zerolog.DebugLevel), capture
}
