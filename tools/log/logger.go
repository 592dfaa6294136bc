// Package log 是对 logrus 的一层薄封装，整个项目都通过它打日志。
package log

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	WarnLevel  = logrus.WarnLevel
	ErrorLevel = logrus.ErrorLevel
	FatalLevel = logrus.FatalLevel
)

// TextFormatter 是 logrus 中的文本格式化器的别名。
type TextFormatter = logrus.TextFormatter

// Level 是 logrus 中级别的别名。
type Level = logrus.Level

// Fields 是结构化日志字段
type Fields = logrus.Fields

// ParseLevel 解析日志级别，空字符串和无法识别的级别都返回 info
func ParseLevel(level string) Level {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// CheckErr 检查错误是否不为 nil，并将其记录在提供的日志级别上。
func CheckErr(level Level, err error) {
	if err != nil {
		Log(level, err)
	}
}

// Log 在指定的日志级别上记录消息
func Log(level Level, messages ...interface{}) {
	switch level {
	case logrus.InfoLevel:
		logrus.Info(messages...)
	case logrus.WarnLevel:
		logrus.Warn(messages...)
	case logrus.ErrorLevel:
		logrus.Error(messages...)
	case logrus.FatalLevel:
		logrus.Fatal(messages...)
	default:
		logrus.Debug(messages...)
	}
}

// SetFormatter 设置 logrus 的格式化器
func SetFormatter(formatter logrus.Formatter) {
	logrus.SetFormatter(formatter)
}

// SetLevel 设置日志级别
func SetLevel(level Level) {
	logrus.SetLevel(level)
}

// SetOutput 设置日志输出位置，测试里用来捕获日志
func SetOutput(out io.Writer) {
	logrus.SetOutput(out)
}

// WithField 添加字段到日志记录。
func WithField(key string, value interface{}) *logrus.Entry {
	return logrus.WithField(key, value)
}

// WithFields 添加多个字段到日志记录。
func WithFields(fields Fields) *logrus.Entry {
	return logrus.WithFields(fields)
}

func Info(messages ...interface{}) {
	logrus.Info(messages...)
}

func Infof(format string, messages ...interface{}) {
	logrus.Infof(format, messages...)
}

func Warn(messages ...interface{}) {
	logrus.Warn(messages...)
}

func Warnf(format string, messages ...interface{}) {
	logrus.Warnf(format, messages...)
}

func Error(messages ...interface{}) {
	logrus.Error(messages...)
}

func Errorf(format string, messages ...interface{}) {
	logrus.Errorf(format, messages...)
}

func Fatal(messages ...interface{}) {
	logrus.Fatal(messages...)
}

func Debug(messages ...interface{}) {
	logrus.Debug(messages...)
}

func Debugf(format string, messages ...interface{}) {
	logrus.Debugf(format, messages...)
}
