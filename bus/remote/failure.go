package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure описывает отказ транспорта: HTTP-статус (0, если ответ не был
// получен) и читаемое сообщение.
type Failure struct {
	Status  int
	Message string
	Method  string
	URL     string
	Err     error
	// Local означает, что запрос не был отправлен: его не удалось
	// сериализовать или построить. Такой отказ не повторяется.
	Local bool
}

// Error реализует интерфейс error.
func (f *Failure) Error() string {
	if f.Local {
		return fmt.Sprintf("%s %s: запрос не отправлен: %s", f.Method, f.URL, f.Message)
	}
	if f.Status == 0 {
		return fmt.Sprintf("%s %s: нет ответа: %s", f.Method, f.URL, f.Message)
	}
	return fmt.Sprintf("%s %s: %d %s: %s", f.Method, f.URL, f.Status, http.StatusText(f.Status), f.Message)
}

// Unwrap возвращает исходную ошибку транспорта.
func (f *Failure) Unwrap() error {
	return f.Err
}

// IsRetryable сообщает, имеет ли смысл повторить запрос без изменений.
func (f *Failure) IsRetryable() bool {
	if f.Local {
		return false
	}
	switch f.Status {
	case 0, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// AsFailure извлекает *Failure из цепочки ошибок.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// toFailure приводит ошибку к *Failure. Ошибка, не помеченная провайдером
// как *Failure, считается локальной: провайдер не сообщил, что запрос
// дошел до сети, поэтому повтор ничего не изменит.
func toFailure(req *Request, err error) *Failure {
	if f, ok := AsFailure(err); ok {
		return f
	}
	return &Failure{
		Method:  req.Method,
		URL:     req.URL,
		Message: err.Error(),
		Err:     err,
		Local:   true,
	}
}
