package log

import (
	"fmt"
	stdlog "log"
	"os"
	"sync"
)

// Level 日志级别。
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

var (
	mu     sync.Mutex
	level  = LevelError
	logger = stdlog.New(os.Stderr, "[sandchest] ", stdlog.LstdFlags)
)

// SetLevel 设置全局日志级别，低于该级别的日志会被丢弃。
func SetLevel(l Level) {
	mu.Lock()
	level = l
	mu.Unlock()
}

func output(l Level, prefix string, args ...interface{}) {
	mu.Lock()
	enabled := l >= level && level != LevelSilent
	mu.Unlock()
	if !enabled {
		return
	}
	logger.Output(3, prefix+fmt.Sprint(args...))
}

func Debug(args ...interface{}) {
	output(LevelDebug, "DEBUG: ", args...)
}

func Debugf(format string, args ...interface{}) {
	Debug(fmt.Sprintf(format, args...))
}

func Info(args ...interface{}) {
	output(LevelInfo, "INFO: ", args...)
}

func Warn(args ...interface{}) {
	output(LevelWarn, "WARN: ", args...)
}

func Error(args ...interface{}) {
	output(LevelError, "ERROR: ", args...)
}
