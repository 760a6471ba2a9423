package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"SignalBoard/internal/chart"
	"SignalBoard/internal/domain/models"
	"SignalBoard/internal/service/botapi"
	"SignalBoard/internal/service/ratelimit"
	"SignalBoard/internal/stream"
	"SignalBoard/internal/usecase"
	xhttp "SignalBoard/pkg/http"
	xlogger "SignalBoard/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"
)

const maxSendBody = 64 << 10

// AccountChannel is the account connection as seen by the API.
type AccountChannel interface {
	Send(msg interface{}) error
	Status() stream.Status
}

// SignalChannel is the signal connection as seen by the API.
type SignalChannel interface {
	Status() stream.Status
}

// RateLimitConfig bounds interaction requests per client.
type RateLimitConfig struct {
	Burst     float64
	PerSecond float64
}

// DashboardHandler serves the dashboard API.
type DashboardHandler struct {
	logger  *xlogger.Logger
	board   *usecase.Board
	session *usecase.ChartSession
	account AccountChannel
	signal  SignalChannel
	rl      *ratelimit.Limiter
	rlCfg   RateLimitConfig
}

func NewDashboardHandler(
	logger *xlogger.Logger,
	board *usecase.Board,
	session *usecase.ChartSession,
	account AccountChannel,
	signal SignalChannel,
	rl *ratelimit.Limiter,
	rlCfg RateLimitConfig,
) *DashboardHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &DashboardHandler{
		logger:  logger,
		board:   board,
		session: session,
		account: account,
		signal:  signal,
		rl:      rl,
		rlCfg:   rlCfg,
	}
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/signals", h.Signals)
	g.GET("/account", h.Account)
	g.GET("/chart.png", h.ChartPNG)
	g.GET("/chart", h.ChartState)

	limited := []echo.MiddlewareFunc{}
	if h.rl != nil {
		limited = append(limited, RateLimit(h.rl, h.rlCfg.Burst, h.rlCfg.PerSecond, h.logger))
	}
	g.POST("/account/send", h.Send, limited...)
	g.POST("/symbols", h.AddSymbol, limited...)

	cg := g.Group("/chart", limited...)
	cg.POST("/symbol", h.SelectSymbol)
	cg.POST("/interval", h.SetInterval)
	cg.POST("/click", h.Click)
	cg.POST("/key", h.Key)
	cg.POST("/swipe", h.Swipe)
	cg.POST("/resize", h.Resize)
	cg.POST("/retry", h.Retry)
	cg.POST("/ma", h.ToggleMA)
}

type statusResponse struct {
	Account   stream.Status     `json:"account"`
	Signal    stream.Status     `json:"signal"`
	BotStatus *models.BotStatus `json:"bot_status"`
	LastError string            `json:"last_error,omitempty"`
	Chart     chart.State       `json:"chart"`
}

func (h *DashboardHandler) Status(c echo.Context) error {
	acc := h.board.Account()
	return xhttp.SuccessResponse(c, statusResponse{
		Account:   h.account.Status(),
		Signal:    h.signal.Status(),
		BotStatus: acc.Status,
		LastError: acc.LastError,
		Chart:     h.session.State(),
	})
}

func (h *DashboardHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.board.Signals(usecase.SignalQuery{
		Sort:   req.Sort,
		Order:  req.Order,
		Group:  req.Group,
		Search: req.Q,
	}))
}

func (h *DashboardHandler) Account(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.board.Account())
}

// Send forwards the raw JSON body on the account channel.
func (h *DashboardHandler) Send(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSendBody+1))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("cannot read body").WithError(err))
	}
	if len(body) > maxSendBody {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("message too large").WithParam("max", maxSendBody))
	}
	if len(bytes.TrimSpace(body)) == 0 || !gjson.ValidBytes(body) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("body must be a JSON document"))
	}

	if err := h.account.Send(body); err != nil {
		if errors.Is(err, stream.ErrNotConnected) {
			return xhttp.AppErrorResponse(c, xhttp.UnavailableError("account channel is not connected"))
		}
		h.logger.Error("account send failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("send failed").WithError(err))
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *DashboardHandler) ChartPNG(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.session.RenderPNG(&buf); err != nil {
		h.logger.Error("chart render failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

func (h *DashboardHandler) ChartState(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.session.State())
}

func (h *DashboardHandler) AddSymbol(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	list, err := h.session.AddSymbol(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.upstreamError(c, "add symbol failed", err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"symbols": list})
}

func (h *DashboardHandler) SelectSymbol(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.session.SelectSymbol(c.Request().Context(), req.Symbol))
}

func (h *DashboardHandler) SetInterval(c echo.Context) error {
	req := &models.IntervalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.session.SetInterval(c.Request().Context(), req.Interval)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *DashboardHandler) Click(c echo.Context) error {
	req := &models.ClickRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.session.Click(req.X))
}

func (h *DashboardHandler) Key(c echo.Context) error {
	req := &models.KeyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	k, ok := chart.ParseKey(req.Key)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unsupported key %q", req.Key))
	}
	return xhttp.SuccessResponse(c, h.session.Key(c.Request().Context(), k))
}

func (h *DashboardHandler) Swipe(c echo.Context) error {
	req := &models.SwipeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.session.Swipe(c.Request().Context(), req.DX, req.DY, req.OnSurface))
}

func (h *DashboardHandler) Resize(c echo.Context) error {
	req := &models.ResizeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	viewport := req.ViewportWidth
	if viewport == 0 {
		viewport = req.ContainerWidth
	}
	return xhttp.SuccessResponse(c, h.session.Resize(req.ContainerWidth, viewport))
}

func (h *DashboardHandler) Retry(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.session.Retry(c.Request().Context()))
}

func (h *DashboardHandler) ToggleMA(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.session.ToggleMA())
}

func (h *DashboardHandler) upstreamError(c echo.Context, msg string, err error) error {
	h.logger.Error(msg, xlogger.Error(err))
	switch {
	case errors.Is(err, botapi.ErrNoToken), errors.Is(err, botapi.ErrUnauthorized):
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError(err.Error()))
	default:
		return xhttp.AppErrorResponse(c, xhttp.BadGatewayError(msg).WithError(err))
	}
}
