package notify

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	n.Error("status 500", "Не удалось получить список")
	n.Success("", "Перезапуск запрошен")

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `summary="status 500"`)
	assert.Contains(t, out, "notification=success")
	assert.Contains(t, out, "Перезапуск запрошен")
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Error("a", "первое")
	r.Success("b", "второе")
	r.Error("c", "третье")

	all := r.Notifications()
	require.Len(t, all, 3)
	assert.Equal(t, "первое", all[0].Message)
	assert.Equal(t, LevelSuccess, all[1].Level)
	assert.False(t, all[2].At.IsZero())

	errs := r.Filter(LevelError)
	require.Len(t, errs, 2)
	assert.Equal(t, "c", errs[1].Summary)
}

func TestMulti(t *testing.T) {
	t.Parallel()

	first, second := NewRecorder(), NewRecorder()
	Multi{first, second}.Success("", "готово")

	assert.Len(t, first.Notifications(), 1)
	assert.Len(t, second.Notifications(), 1)
}

func TestWriterNotifier(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := NewWriterNotifier(&buf)
	n.Success("", "Restart: запрошено для 2 коллекторов")
	n.Error("GET /count/total: 500", "Не удалось получить число сообщений")

	assert.Equal(t, "Restart: запрошено для 2 коллекторов\nошибка: Не удалось получить число сообщений\n", buf.String())
}

func TestMultiWithLogAndWriter(t *testing.T) {
	t.Parallel()

	var logs, console bytes.Buffer
	n := Multi{
		NewLogNotifier(slog.New(slog.NewTextHandler(&logs, nil))),
		NewWriterNotifier(&console),
	}
	n.Error("status 503", "Сервис недоступен")

	assert.Contains(t, logs.String(), `summary="status 503"`)
	assert.Equal(t, "ошибка: Сервис недоступен\n", console.String())
}
