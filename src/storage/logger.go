package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger 日志记录器，输出到标准输出和日志文件，并把每行日志推送给订阅者
type Logger struct {
	zerolog.Logger

	path        string
	file        *os.File      // 日志文件句柄
	console     io.Writer     // 标准输出
	mu          sync.Mutex    // 互斥锁，保证并发安全
	subscribers []chan string // 订阅者通道列表
}

// Options 日志配置
type Options struct {
	Level  string
	Format string // json / console
	File   string // 为空时只输出到console
	Stdout io.Writer
}

// NewLogger 创建新的日志记录器
func NewLogger(opts Options) (*Logger, error) {
	l := &Logger{path: opts.File, console: opts.Stdout}
	if l.console == nil {
		l.console = os.Stdout
	}

	if opts.File != "" {
		file, err := openLogFile(opts.File)
		if err != nil {
			return nil, err
		}
		l.file = file
	}

	var out io.Writer = lineWriter{l}
	if strings.ToLower(opts.Format) == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    true,
			TimeFormat: time.RFC3339,
		}
	}

	l.Logger = zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()
	return l, nil
}

func openLogFile(filename string) (*os.File, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// ParseLevel converts string level to zerolog.Level
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component 返回带组件名的子日志
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// lineWriter 把zerolog的输出写入文件并通知订阅者
type lineWriter struct{ l *Logger }

func (w lineWriter) Write(p []byte) (int, error) {
	l := w.l
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.console != nil {
		l.console.Write(p)
	}
	if l.file != nil {
		if _, err := l.file.Write(p); err != nil {
			return 0, err
		}
	}

	// 通知所有订阅者
	entry := strings.TrimRight(string(p), "\n")
	for _, ch := range l.subscribers {
		select {
		case ch <- entry: // 尝试发送日志条目
		default: // 如果通道已满则跳过
		}
	}
	return len(p), nil
}

// Close 关闭日志文件和订阅通道
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.subscribers {
		close(ch)
	}
	l.subscribers = nil

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Reopen 重新打开日志文件，配合外部logrotate使用(SIGHUP)
func (l *Logger) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path == "" {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
	}

	file, err := openLogFile(l.path)
	if err != nil {
		l.file = nil
		return err
	}
	l.file = file
	return nil
}

// CheckRotate 日志文件超过maxSize时改名为 <name>.<时间戳><ext> 并重新打开
func (l *Logger) CheckRotate(maxSize int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || maxSize <= 0 {
		return false, nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() <= maxSize {
		return false, nil
	}

	l.file.Close()
	ext := filepath.Ext(l.path)
	rotated := fmt.Sprintf("%s.%s%s", strings.TrimSuffix(l.path, ext), time.Now().Format("20060102150405"), ext)
	if err := os.Rename(l.path, rotated); err != nil {
		l.file, _ = openLogFile(l.path)
		return false, err
	}

	l.file, err = openLogFile(l.path)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe 订阅日志消息
func (l *Logger) Subscribe() <-chan string {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 创建带缓冲的通道(容量100)
	ch := make(chan string, 100)
	l.subscribers = append(l.subscribers, ch)
	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (l *Logger) Unsubscribe(sub <-chan string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, ch := range l.subscribers {
		if (<-chan string)(ch) == sub {
			close(ch)
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			return
		}
	}
}
