// Package remote оборачивает одиночный HTTP-вызов в отложенную операцию.
// Пакет не содержит бизнес-логики: он только выполняет запрос, повторяет его
// по расписанию, если об этом попросили, и сообщает успех или причину отказа.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/x-research-team/dtx-sync/bus/future"
)

// Request описывает один удаленный вызов.
type Request struct {
	ID     uuid.UUID
	Method string
	URL    string
	// Body сериализуется в JSON; nil означает запрос без тела.
	Body   any
	Header http.Header
}

// NewRequest создает запрос с новым идентификатором.
func NewRequest(method, url string, body any) *Request {
	return &Request{
		ID:     uuid.New(),
		Method: method,
		URL:    url,
		Body:   body,
		Header: make(http.Header),
	}
}

// Response — ответ удаленной стороны со статусом 2xx.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode разбирает JSON-тело ответа в target.
func (r *Response) Decode(target any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("пустое тело ответа")
	}
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("не удалось разобрать тело ответа: %w", err)
	}
	return nil
}

// Provider определяет контракт сменного транспорта. Send выполняет ровно
// одну попытку и блокируется до ее завершения.
type Provider interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// ProviderFunc позволяет использовать функцию как Provider.
type ProviderFunc func(ctx context.Context, req *Request) (*Response, error)

// Send реализует Provider.
func (f ProviderFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Gate — шлюз удаленных операций, с которым работают хранилища.
type Gate interface {
	// Execute выполняет одну попытку запроса. Отказ всегда имеет тип *Failure.
	Execute(ctx context.Context, method, url string, body any) *future.Future[*Response]

	// ExecutePeriodically повторяет запрос с интервалом interval, пока он не
	// завершится успехом, неповторяемым отказом или отменой через cancel.
	// Вызывающий получает только первый установленный исход.
	ExecutePeriodically(ctx context.Context, method, url string, body any, interval time.Duration) (result *future.Future[*Response], cancel context.CancelFunc)
}
