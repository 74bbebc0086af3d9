// Package api реализует HTTP API сайдкаров: выборку для администрирования,
// массовые действия, очереди действий отдельных сайдкаров, регистрацию
// сайдкаров и счетчик сообщений.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/x-research-team/dtx-sync/sidecar"
	"github.com/x-research-team/dtx-sync/sidecar/storage"
)

// Допустимые массовые действия над коллекторами.
var allowedActions = map[string]bool{
	"start":   true,
	"stop":    true,
	"restart": true,
}

// Server обслуживает HTTP API поверх storage.Storage.
type Server struct {
	storage storage.Storage
	logger  *slog.Logger
	router  *gin.Engine
	events  atomic.Int64
	now     func() time.Time
}

// NewServer создает сервер и регистрирует маршруты.
func NewServer(st storage.Storage, opts ...Option) *Server {
	cfg := &config{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		storage: st,
		logger:  logger,
		now:     time.Now,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(chain(
		tracing(cfg.tracerProvider, cfg.propagator),
		logging(cfg.logger),
		metrics(cfg.meterProvider),
		counting(&s.events),
	)...)

	router.POST("/sidecar/administration", s.administration)
	router.PUT("/sidecar/administration/action", s.bulkAction)
	router.GET("/sidecar/action/:sidecarId", s.getAction)
	router.PUT("/sidecar/action/:sidecarId", s.setAction)
	router.PUT("/sidecar/:sidecarId", s.register)
	router.GET("/count/total", s.countTotal)
	router.GET("/up", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

	s.router = router
	return s
}

// ServeHTTP реализует http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Events возвращает число обработанных запросов.
func (s *Server) Events() int64 {
	return s.events.Load()
}

// administration возвращает страницу сайдкаров.
func (s *Server) administration(c *gin.Context) {
	var req sidecar.ListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("некорректное тело запроса: %v", err))
		return
	}
	req = normalize(req)

	filters := maps.Clone(req.Filters)
	if filters == nil {
		filters = map[string]string{}
	}

	list, total, err := s.storage.ListSidecars(c.Request.Context(), storage.Filter{
		Query:   req.Query,
		Filters: filters,
		Offset:  (req.Page - 1) * req.PerPage,
		Limit:   req.PerPage,
	})
	if err != nil {
		s.internalError(c, "не удалось получить список сайдкаров", err)
		return
	}

	c.JSON(http.StatusOK, sidecar.ListResponse{
		Sidecars: list,
		Query:    req.Query,
		Filters:  filters,
		Total:    total,
		Count:    len(list),
		Page:     req.Page,
		PerPage:  req.PerPage,
	})
}

// bulkAction раскладывает массовое действие по очередям сайдкаров.
func (s *Server) bulkAction(c *gin.Context) {
	var req sidecar.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("некорректное тело запроса: %v", err))
		return
	}
	if !allowedActions[req.Action] {
		badRequest(c, fmt.Sprintf("недопустимое действие %q", req.Action))
		return
	}
	if len(req.Collectors) == 0 {
		badRequest(c, "не указаны коллекторы")
		return
	}

	queued := make([]*storage.Actions, 0, len(req.Collectors))
	for _, target := range req.Collectors {
		if target.SidecarID == "" {
			badRequest(c, "не указан идентификатор сайдкара")
			return
		}
		actions := make([]storage.CollectorAction, 0, len(target.CollectorIDs))
		for _, id := range target.CollectorIDs {
			actions = append(actions, storage.CollectorAction{
				CollectorID: id,
				Properties:  map[string]any{req.Action: true},
			})
		}
		queued = append(queued, storage.NewActions(target.SidecarID, actions))
	}

	if err := s.storage.SaveActions(c.Request.Context(), queued...); err != nil {
		s.internalError(c, "не удалось поставить действия в очередь", err)
		return
	}
	c.Status(http.StatusAccepted)
}

// getAction возвращает очередь действий сайдкара или пустой список.
func (s *Server) getAction(c *gin.Context) {
	a, err := s.storage.FindActions(c.Request.Context(), c.Param("sidecarId"), false)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusOK, []storage.CollectorAction{})
	case err != nil:
		s.internalError(c, "не удалось получить действия сайдкара", err)
	default:
		c.JSON(http.StatusOK, a.Actions)
	}
}

// setAction заменяет очередь действий сайдкара.
func (s *Server) setAction(c *gin.Context) {
	var actions []storage.CollectorAction
	if err := c.ShouldBindJSON(&actions); err != nil {
		badRequest(c, fmt.Sprintf("некорректное тело запроса: %v", err))
		return
	}
	if actions == nil {
		badRequest(c, "список действий не может быть пустым")
		return
	}

	if err := s.storage.SaveActions(c.Request.Context(), storage.NewActions(c.Param("sidecarId"), actions)); err != nil {
		s.internalError(c, "не удалось сохранить действия сайдкара", err)
		return
	}
	c.Status(http.StatusAccepted)
}

// registration — тело запроса регистрации сайдкара.
type registration struct {
	NodeName        string   `json:"node_name" binding:"required"`
	OperatingSystem string   `json:"operating_system"`
	SidecarVersion  string   `json:"sidecar_version"`
	Collectors      []string `json:"collectors"`
}

// register регистрирует сайдкар или обновляет время его последнего
// обращения.
func (s *Server) register(c *gin.Context) {
	var req registration
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("некорректная регистрация: %v", err))
		return
	}

	err := s.storage.SaveSidecar(c.Request.Context(), sidecar.Sidecar{
		NodeID:          c.Param("sidecarId"),
		NodeName:        req.NodeName,
		Active:          true,
		OperatingSystem: req.OperatingSystem,
		SidecarVersion:  req.SidecarVersion,
		LastSeen:        s.now().UTC(),
		Collectors:      req.Collectors,
	})
	if err != nil {
		s.internalError(c, "не удалось зарегистрировать сайдкар", err)
		return
	}
	c.Status(http.StatusAccepted)
}

// countTotal возвращает общее число обработанных сервером сообщений.
func (s *Server) countTotal(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": s.events.Load()})
}

func (s *Server) internalError(c *gin.Context, message string, err error) {
	s.logger.Error(message, slog.Any("error", err), slog.String("route", c.FullPath()))
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Type: "ApiError", Message: message})
}

// normalize приводит параметры страницы к допустимым значениям. Номер
// страницы ограничен так, чтобы смещение выборки помещалось в int.
func normalize(req sidecar.ListRequest) sidecar.ListRequest {
	switch {
	case req.PerPage < 1:
		req.PerPage = sidecar.DefaultPageSize
	case req.PerPage > sidecar.MaxPageSize:
		req.PerPage = sidecar.MaxPageSize
	}
	if req.Page < 1 {
		req.Page = sidecar.DefaultPage
	}
	if maxPage := math.MaxInt / req.PerPage; req.Page > maxPage {
		req.Page = maxPage
	}
	return req
}

// errorResponse — тело ответа с ошибкой. Клиентский шлюз показывает
// пользователю поле message.
type errorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Type: "ApiError", Message: message})
}
