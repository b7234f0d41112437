package logger

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// callerFrame returns file and line of the first frame outside the logging
// stack.
func callerFrame() (string, int) {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return "", 0
	}
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !skipFrame(frame) {
			return path.Base(frame.File), frame.Line
		}
		if !more {
			return "", 0
		}
	}
}

func skipFrame(frame runtime.Frame) bool {
	switch {
	case strings.Contains(frame.File, "github.com/rs/zerolog"),
		strings.Contains(frame.File, "github.com/go-logr/"),
		strings.HasSuffix(frame.File, "/pkg/logger/helpers.go"):
		return true
	}
	return false
}

func consoleWriter() zerolog.ConsoleWriter {
	output := zerolog.ConsoleWriter{Out: os.Stdout, NoColor: false, TimeFormat: timeFormat}
	output.FormatTimestamp = func(i interface{}) string {
		return fmt.Sprintf("[%v]", i)
	}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("[%-3s]", i))
	}
	output.FormatMessage = func(i interface{}) string {
		file, line := callerFrame()
		if file == "" {
			return fmt.Sprintf("=> %v", i)
		}
		return fmt.Sprintf("[%s:%d] => %v", file, line, i)
	}
	return output
}
