// Package storage описывает хранение сайдкаров и очередей действий над их
// коллекторами на стороне API.
package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/x-research-team/dtx-sync/sidecar"
)

// ErrNotFound возвращается, если запись не найдена.
var ErrNotFound = errors.New("запись не найдена")

// CollectorAction — действие над одним коллектором, ожидающее получения
// сайдкаром.
type CollectorAction struct {
	CollectorID string         `json:"collector_id"`
	Properties  map[string]any `json:"properties"`
}

// Actions — очередь действий одного сайдкара. Новая очередь заменяет
// предыдущую целиком.
type Actions struct {
	ID        uuid.UUID
	SidecarID string
	CreatedAt time.Time
	Actions   []CollectorAction
}

// NewActions создает очередь действий для сайдкара.
func NewActions(sidecarID string, actions []CollectorAction) *Actions {
	return &Actions{
		ID:        uuid.New(),
		SidecarID: sidecarID,
		CreatedAt: time.Now().UTC(),
		Actions:   actions,
	}
}

// Filter — выборка сайдкаров.
type Filter struct {
	// Query ищет подстроку в имени или идентификаторе узла без учета регистра.
	Query string
	// Filters сужает выборку: "active" ("true"/"false"), "os", "collector".
	Filters map[string]string
	Offset  int
	Limit   int
}

// Storage — хранилище сайдкаров и очередей действий.
// Все операции должны быть потокобезопасными.
type Storage interface {
	// SaveSidecar добавляет или обновляет сайдкар.
	SaveSidecar(ctx context.Context, s sidecar.Sidecar) error

	// ListSidecars возвращает страницу сайдкаров, упорядоченных по имени
	// узла, и общее число подходящих записей.
	ListSidecars(ctx context.Context, f Filter) ([]sidecar.Sidecar, int, error)

	// SaveActions ставит очереди действий сайдкаров, заменяя прежние.
	// Очереди сохраняются атомарно: либо все, либо ни одной.
	SaveActions(ctx context.Context, actions ...*Actions) error

	// FindActions возвращает очередь действий сайдкара. При remove очередь
	// удаляется после чтения. Если очереди нет, возвращается ErrNotFound.
	FindActions(ctx context.Context, sidecarID string, remove bool) (*Actions, error)
}

// Match сообщает, подходит ли сайдкар под выборку без учета смещения и
// лимита. Используется реализациями, которые фильтруют в памяти.
func (f Filter) Match(s sidecar.Sidecar) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(s.NodeName), q) && !strings.Contains(strings.ToLower(s.NodeID), q) {
			return false
		}
	}
	for key, value := range f.Filters {
		switch key {
		case "active":
			if (value == "true") != s.Active {
				return false
			}
		case "os":
			if !strings.EqualFold(s.OperatingSystem, value) {
				return false
			}
		case "collector":
			if !slices.Contains(s.Collectors, value) {
				return false
			}
		}
	}
	return true
}
