package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"screenrec/internal/domain"
	"screenrec/internal/events"
)

// Recorder is the control surface the API drives.
type Recorder interface {
	Start(ctx context.Context) (domain.StartResult, error)
	Stop(ctx context.Context) (domain.StopResult, error)
	Finalize(ctx context.Context) (domain.StopResult, error)
	Ping()
	Status() domain.Status
}

// Options configures optional server behavior.
type Options struct {
	// AuthToken enables bearer token auth on every route when set.
	AuthToken string
	// Enrich decorates status responses, e.g. with worker process stats.
	Enrich func(domain.Status) domain.Status
}

// Server exposes the recorder over HTTP and streams events over a websocket.
type Server struct {
	echo     *echo.Echo
	recorder Recorder
	hub      *events.Hub
	logger   *slog.Logger
	enrich   func(domain.Status) domain.Status
	upgrader websocket.Upgrader
}

func New(recorder Recorder, hub *events.Hub, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		echo:     echo.New(),
		recorder: recorder,
		hub:      hub,
		logger:   logger,
		enrich:   opts.Enrich,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelDebug
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	}))
	if opts.AuthToken != "" {
		e.Use(bearerAuth(opts.AuthToken))
	}

	e.GET("/status", s.status)
	e.POST("/start", s.start)
	e.POST("/stop", s.stop)
	e.POST("/keep_alive", s.keepAlive)
	e.POST("/merge", s.merge)
	e.GET("/ws", s.watch)

	return s
}

// bearerAuth accepts "Authorization: Bearer <token>" or a token query
// parameter for websocket clients that cannot set headers.
func bearerAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization + ",query:token",
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(_ error, _ echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		},
	})
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown; it returns http.ErrServerClosed then.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, message := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "uri", c.Request().RequestURI, "error", err)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, messageResponse{Message: message})
	}
	if err != nil {
		s.logger.Error("failed to write error response", "error", err)
	}
}

func statusFor(err error) (int, string) {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code, fmt.Sprint(httpErr.Message)
	case errors.Is(err, domain.ErrAlreadyRecording):
		return http.StatusTooEarly, "Capture is already in progress"
	case errors.Is(err, domain.ErrNotRecording):
		return http.StatusTooEarly, "No capture is running"
	case errors.Is(err, domain.ErrNothingToMerge):
		return http.StatusConflict, "Nothing to merge"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request abandoned before the capture drained"
	default:
		return http.StatusInternalServerError, "Internal server error, " + err.Error()
	}
}
