package utils

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	MainLogFile  = "xssdawn.log"       // 全部级别
	ErrorLogFile = "xssdawn_error.log" // 仅error及以上
)

// Logger 全局日志器, InitLogger之前为零值(丢弃所有输出)
var Logger zerolog.Logger

// LogConfig 日志配置, 轮转参数直接传给lumberjack
type LogConfig struct {
	Level      string
	LogDir     string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
	Console    io.Writer // 为nil时使用os.Stderr
}

// rotator 日志目录下的一个轮转文件
func (c LogConfig) rotator(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.LogDir, name),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// ParseLevel 解析日志级别, 空值或无法识别时回退到info
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

// InitLogger 初始化日志系统
//
// 输出: 控制台(stderr, 合并结果与统计走stdout, 便于管道消费)、
// <log_dir>/xssdawn.log 与 <log_dir>/xssdawn_error.log.
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	level := ParseLevel(config.Level)
	zerolog.SetGlobalLevel(level)

	console := config.Console
	if console == nil {
		console = os.Stderr
	}

	// MultiLevelWriter把级别传给WriteLevel, 错误日志文件借此只收error及以上
	out := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339, NoColor: console != os.Stderr},
		config.rotator(MainLogFile),
		&FilteredWriter{Writer: config.rotator(ErrorLogFile), MinLevel: zerolog.ErrorLevel},
	)

	Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	log.Logger = Logger

	Logger.Debug().Str("level", level.String()).Str("log_dir", config.LogDir).Msg("日志系统初始化完成")
	return nil
}

// FilteredWriter 只转发MinLevel及以上的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 没有级别信息的写入一律丢弃
func (w *FilteredWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level == zerolog.NoLevel || level < w.MinLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

// 快捷方法
func Info(msg string) { Logger.Info().Msg(msg) }

func Infof(format string, args ...any) { Logger.Info().Msgf(format, args...) }

func Warn(msg string) { Logger.Warn().Msg(msg) }

func Warnf(format string, args ...any) { Logger.Warn().Msgf(format, args...) }

func Debugf(format string, args ...any) { Logger.Debug().Msgf(format, args...) }

func Errorf(format string, args ...any) { Logger.Error().Msgf(format, args...) }
