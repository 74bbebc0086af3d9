package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// maxErrorMessage ограничивает длину сообщения, извлекаемого из тела ошибки.
const maxErrorMessage = 512

// HTTPProvider выполняет запросы через net/http, кодируя тело в JSON.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	header  http.Header
}

// HTTPOption настраивает HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient задает HTTP-клиент. По умолчанию http.DefaultClient.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		p.client = client
	}
}

// WithHeader добавляет заголовок ко всем запросам.
func WithHeader(key, value string) HTTPOption {
	return func(p *HTTPProvider) {
		p.header.Add(key, value)
	}
}

// WithBasicAuth добавляет заголовок базовой аутентификации.
func WithBasicAuth(username, password string) HTTPOption {
	return func(p *HTTPProvider) {
		req := http.Request{Header: make(http.Header)}
		req.SetBasicAuth(username, password)
		p.header.Set("Authorization", req.Header.Get("Authorization"))
	}
}

// NewHTTPProvider создает транспорт для API, расположенного по baseURL.
// Относительные URL запросов разрешаются относительно baseURL.
func NewHTTPProvider(baseURL string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send выполняет одну попытку запроса.
func (p *HTTPProvider) Send(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &Failure{Method: req.Method, URL: req.URL, Message: fmt.Sprintf("не удалось сериализовать тело запроса: %v", err), Err: err, Local: true}
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, p.resolve(req.URL), body)
	if err != nil {
		return nil, &Failure{Method: req.Method, URL: req.URL, Message: fmt.Sprintf("не удалось построить запрос: %v", err), Err: err, Local: true}
	}
	for key, values := range p.header {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	for key, values := range req.Header {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &Failure{Method: req.Method, URL: req.URL, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Failure{Method: req.Method, URL: req.URL, Message: "не удалось прочитать тело ответа", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Failure{
			Status:  resp.StatusCode,
			Method:  req.Method,
			URL:     req.URL,
			Message: errorMessage(raw, resp.Status),
		}
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   raw,
	}, nil
}

func (p *HTTPProvider) resolve(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return p.baseURL + "/" + strings.TrimLeft(url, "/")
}

// errorMessage извлекает поле message из JSON-ответа об ошибке, а при его
// отсутствии возвращает обрезанный текст тела или строку статуса.
func errorMessage(raw []byte, status string) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return truncate(payload.Message, maxErrorMessage)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return status
	}
	return truncate(text, maxErrorMessage)
}

// truncate обрезает строку не длиннее limit байт по границе символа.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
