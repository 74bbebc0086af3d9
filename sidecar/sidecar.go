// Package sidecar содержит хранилище администрирования сайдкаров: список
// сайдкаров с фильтрами и постраничной навигацией и массовые действия над
// их коллекторами. Типы запросов и ответов общие для клиента и сервера.
package sidecar

import (
	"maps"
	"slices"
	"time"
)

// Значения по умолчанию для постраничного запроса.
const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Sidecar — агент сбора логов на узле.
type Sidecar struct {
	NodeID          string    `json:"node_id"`
	NodeName        string    `json:"node_name"`
	Active          bool      `json:"active"`
	OperatingSystem string    `json:"operating_system,omitempty"`
	SidecarVersion  string    `json:"sidecar_version,omitempty"`
	LastSeen        time.Time `json:"last_seen"`
	Collectors      []string  `json:"collectors,omitempty"`
}

// ListQuery — параметры команды list.
type ListQuery struct {
	Query    string
	Page     int
	PageSize int
	Filters  map[string]string
}

// Normalize подставляет значения по умолчанию.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	return q
}

// ListRequest — тело запроса списка.
type ListRequest struct {
	Query   string            `json:"query"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Request строит тело запроса из нормализованного запроса.
func (q ListQuery) Request() ListRequest {
	q = q.Normalize()
	return ListRequest{
		Query:   q.Query,
		Page:    q.Page,
		PerPage: q.PageSize,
		Filters: q.Filters,
	}
}

// ListResponse — ответ сервера на запрос списка.
type ListResponse struct {
	Sidecars []Sidecar        `json:"sidecars"`
	Query    string            `json:"query"`
	Filters  map[string]string `json:"filters"`
	Total    int               `json:"total"`
	Count    int               `json:"count"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
}

// CollectorAction — действие над коллекторами одного сайдкара.
type CollectorAction struct {
	SidecarID    string   `json:"sidecar_id"`
	CollectorIDs []string `json:"collector_ids"`
}

// ActionRequest — тело запроса массового действия.
type ActionRequest struct {
	Action     string            `json:"action"`
	Collectors []CollectorAction `json:"collectors"`
}

// NewActionRequest разворачивает отображение сайдкар → коллекторы в список.
// Сайдкары упорядочиваются по идентификатору, чтобы тело запроса было
// детерминированным.
func NewActionRequest(action string, collectors map[string][]string) ActionRequest {
	req := ActionRequest{
		Action:     action,
		Collectors: make([]CollectorAction, 0, len(collectors)),
	}
	for _, id := range slices.Sorted(maps.Keys(collectors)) {
		req.Collectors = append(req.Collectors, CollectorAction{
			SidecarID:    id,
			CollectorIDs: slices.Clone(collectors[id]),
		})
	}
	return req
}

// Affected возвращает общее число коллекторов в запросе.
func (r ActionRequest) Affected() int {
	n := 0
	for _, c := range r.Collectors {
		n += len(c.CollectorIDs)
	}
	return n
}

// ActionResult — итог массового действия для вызывающего.
type ActionResult struct {
	Action   string
	Affected int
}

// Pagination — состояние постраничной навигации, подтвержденное сервером.
// Count всегда равен числу сайдкаров в том же снимке.
type Pagination struct {
	Page     int
	PageSize int
	Total    int
	Count    int
}

// Snapshot — состояние хранилища администрирования. Все поля снимка взяты
// из одного и того же ответа сервера.
type Snapshot struct {
	Sidecars   []Sidecar
	Filters    map[string]string
	Query      string
	Pagination Pagination
}

// snapshotOf строит снимок из ответа. Срезы и карты копируются, чтобы снимок
// не разделял память с ответом, который получил вызывающий.
func snapshotOf(resp ListResponse) Snapshot {
	sidecars := slices.Clone(resp.Sidecars)
	if sidecars == nil {
		sidecars = []Sidecar{}
	}
	return Snapshot{
		Sidecars: sidecars,
		Filters:  maps.Clone(resp.Filters),
		Query:    resp.Query,
		Pagination: Pagination{
			Page:     resp.Page,
			PageSize: resp.PerPage,
			Total:    resp.Total,
			Count:    len(sidecars),
		},
	}
}

// lastQuery восстанавливает запрос, подтвержденный сервером.
func (s Snapshot) lastQuery() ListQuery {
	return ListQuery{
		Query:    s.Query,
		Page:     s.Pagination.Page,
		PageSize: s.Pagination.PageSize,
		Filters:  maps.Clone(s.Filters),
	}.Normalize()
}
