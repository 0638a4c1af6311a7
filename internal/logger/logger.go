package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// LogLevel 日志级别
type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// String 返回级别名称
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int32(l))
}

// Logger 日志记录器
type Logger struct {
	level atomic.Int32
}

var defaultLogger = &Logger{}

func init() {
	defaultLogger.level.Store(int32(INFO))

	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)
}

// SetOutput 设置日志输出位置
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// SetLevel 设置日志级别
func SetLevel(level LogLevel) {
	defaultLogger.level.Store(int32(level))
}

// GetLevel 获取当前日志级别
func GetLevel() LogLevel {
	return LogLevel(defaultLogger.level.Load())
}

// ParseLevel 从字符串解析日志级别，无法识别时返回 INFO
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// SetLevelFromString 从字符串设置日志级别
func SetLevelFromString(levelStr string) {
	SetLevel(ParseLevel(levelStr))
}

func (l *Logger) logf(level LogLevel, format string, args ...any) {
	if int32(level) < l.level.Load() {
		return
	}

	message := fmt.Sprintf(format, args...)
	log.Printf("[%s] %s", level, message)
}

func Debug(format string, args ...any) {
	defaultLogger.logf(DEBUG, format, args...)
}

func Info(format string, args ...any) {
	defaultLogger.logf(INFO, format, args...)
}

func Warn(format string, args ...any) {
	defaultLogger.logf(WARN, format, args...)
}

func Error(format string, args ...any) {
	defaultLogger.logf(ERROR, format, args...)
}

func Fatal(format string, args ...any) {
	defaultLogger.logf(FATAL, format, args...)
	os.Exit(1)
}

// 结构化日志方法
func DebugWithFields(message string, fields map[string]any) {
	Debug("%s %s", message, formatFields(fields))
}

func InfoWithFields(message string, fields map[string]any) {
	Info("%s %s", message, formatFields(fields))
}

func WarnWithFields(message string, fields map[string]any) {
	Warn("%s %s", message, formatFields(fields))
}

func ErrorWithFields(message string, fields map[string]any) {
	Error("%s %s", message, formatFields(fields))
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, fields[key]))
	}
	return fmt.Sprintf("| %s", strings.Join(parts, " "))
}
