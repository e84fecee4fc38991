package api

import (
	"Aurelius/internal/domain/models"
	"Aurelius/internal/usecase"
	xhttp "Aurelius/pkg/http"
	applogger "Aurelius/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StatusHandler serves pipeline progress and finished backtest summaries.
type StatusHandler struct {
	progress *usecase.Progress
	book     *usecase.ResultBook
	log      *applogger.Logger
}

func NewStatusHandler(progress *usecase.Progress, book *usecase.ResultBook, l *applogger.Logger) *StatusHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &StatusHandler{progress: progress, book: book, log: l}
}

// RegisterRoutes mounts the health check and status API on e.
func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.health)
	g := e.Group("/api")
	g.GET("/status", h.status)
	g.GET("/results", h.results)
	g.GET("/results/:table/:strategy", h.result)
}

func (h *StatusHandler) health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *StatusHandler) status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.progress.Snapshot())
}

func (h *StatusHandler) results(c echo.Context) error {
	var req models.ResultsRequest
	if errs := xhttp.BindRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	rows := h.book.List(req.Table, req.Strategy)
	total := int64(len(rows))
	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *StatusHandler) result(c echo.Context) error {
	var req models.ResultRequest
	if errs := xhttp.BindRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	table, strategy := req.Table, req.Strategy
	rows := h.book.List(table, strategy)
	if len(rows) == 0 {
		h.log.Debug("result not found", applogger.String("table", table), applogger.String("strategy", strategy))
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no result for %s/%s", table, strategy).
			WithParam("table", table).WithParam("strategy", strategy))
	}
	return xhttp.SuccessResponse(c, rows[0])
}
