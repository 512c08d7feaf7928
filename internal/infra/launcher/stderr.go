package launcher

import (
	"bufio"
	"io"
	"strings"

	"go.uber.org/zap"
)

const maxStderrLineLength = 32 * 1024 // 32KB per line

// mirrorStderr drains a child's stderr into the log stream, one line per
// entry, at debug level.
func mirrorStderr(reader io.Reader, logger *zap.Logger) {
	buf := bufio.NewReaderSize(reader, maxStderrLineLength+1)
	for {
		line, isPrefix, err := buf.ReadLine()
		if len(line) > 0 {
			trimmed := strings.TrimRight(string(line), "\r\n")
			if trimmed != "" {
				if len(trimmed) > maxStderrLineLength {
					logger.Warn("stderr line truncated",
						zap.Int("originalLength", len(trimmed)),
						zap.Int("maxLength", maxStderrLineLength),
					)
					trimmed = trimmed[:maxStderrLineLength] + "... [truncated]"
				}
				logger.Debug(trimmed)
			}
			if isPrefix {
				// Discard rest of oversized line
				for isPrefix && err == nil {
					_, isPrefix, err = buf.ReadLine()
				}
			}
		}
		if err != nil {
			return
		}
	}
}
