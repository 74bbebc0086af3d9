// Package notify описывает границу пользовательских уведомлений. Хранилища
// сообщают через нее об отказах команд и о выбранных успехах, а способ
// показа уведомления остается за реализацией.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Level — вид уведомления.
type Level string

const (
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Notifier принимает уведомления. summary — короткая техническая сводка,
// message — текст для пользователя.
type Notifier interface {
	Error(summary, message string)
	Success(summary, message string)
}

// Notification — одно уведомление.
type Notification struct {
	Level   Level
	Summary string
	Message string
	At      time.Time
}

// LogNotifier пишет уведомления в slog.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создает LogNotifier. Если logger равен nil, используется
// slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Error реализует Notifier.
func (n *LogNotifier) Error(summary, message string) {
	n.logger.LogAttrs(context.Background(), slog.LevelError, message,
		slog.String("notification", string(LevelError)),
		slog.String("summary", summary),
	)
}

// Success реализует Notifier.
func (n *LogNotifier) Success(summary, message string) {
	n.logger.LogAttrs(context.Background(), slog.LevelInfo, message,
		slog.String("notification", string(LevelSuccess)),
		slog.String("summary", summary),
	)
}

// WriterNotifier печатает текст уведомлений для пользователя в w, по
// строке на уведомление. Сводка не печатается.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier создает WriterNotifier.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Error реализует Notifier.
func (n *WriterNotifier) Error(summary, message string) {
	n.print("ошибка: " + message)
}

// Success реализует Notifier.
func (n *WriterNotifier) Success(summary, message string) {
	n.print(message)
}

func (n *WriterNotifier) print(line string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, line)
}

// Recorder хранит уведомления в памяти в порядке поступления.
// Безопасен для конкурентного использования.
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
	now           func() time.Time
}

// NewRecorder создает пустой Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Error реализует Notifier.
func (r *Recorder) Error(summary, message string) {
	r.add(LevelError, summary, message)
}

// Success реализует Notifier.
func (r *Recorder) Success(summary, message string) {
	r.add(LevelSuccess, summary, message)
}

func (r *Recorder) add(level Level, summary, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, Notification{
		Level:   level,
		Summary: summary,
		Message: message,
		At:      r.now(),
	})
}

// Notifications возвращает копию накопленных уведомлений.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

// Filter возвращает уведомления уровня level.
func (r *Recorder) Filter(level Level) []Notification {
	var out []Notification
	for _, n := range r.Notifications() {
		if n.Level == level {
			out = append(out, n)
		}
	}
	return out
}

// Multi рассылает каждое уведомление всем notifiers по порядку.
type Multi []Notifier

// Error реализует Notifier.
func (m Multi) Error(summary, message string) {
	for _, n := range m {
		n.Error(summary, message)
	}
}

// Success реализует Notifier.
func (m Multi) Success(summary, message string) {
	for _, n := range m {
		n.Success(summary, message)
	}
}
