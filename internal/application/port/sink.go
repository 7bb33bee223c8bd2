package port

import "time"

type Sink interface {
	// Live line: overwrite last line (no newline)
	WriteLive(line string) error
	// Event line: append a historical line with timestamp
	WriteEvent(ts time.Time, line string) error
	// Normal newline (for logs)
	NewLine() error
}
