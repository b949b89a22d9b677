// Package webserver exposes the console core over HTTP: login and logout,
// session info, and an authenticated /api surface proxied to the backend.
package webserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fleetdesk/console/internal/apiclient"
	"github.com/fleetdesk/console/internal/config"
	"github.com/fleetdesk/console/internal/navigation"
	"github.com/fleetdesk/console/internal/resources"
	"github.com/fleetdesk/console/internal/session"
)

const (
	shutdownTimeout = 10 * time.Second

	tracerName = "github.com/fleetdesk/console/internal/webserver"
)

type Webserver struct {
	echo    *echo.Echo
	conf    *config.Config
	session *session.Store
	client  resources.Requester
	router  *navigation.Router
	logger  *zap.Logger
	tracer  trace.Tracer
}

func New(conf *config.Config, sess *session.Store, client resources.Requester, router *navigation.Router, logger *zap.Logger) *Webserver {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Webserver{
		echo:    echo.New(),
		conf:    conf,
		session: sess,
		client:  client,
		router:  router,
		logger:  logger.Named("webserver"),
		tracer:  otel.Tracer(tracerName),
	}

	w.echo.HideBanner = true
	w.echo.HidePort = true

	w.echo.Use(middleware.Recover())
	w.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	w.echo.Use(w.tracing)
	w.echo.Use(w.requestLogger)

	w.registerRoutes()

	return w
}

func (w *Webserver) registerRoutes() {
	w.echo.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	w.echo.GET("/login", w.loginPageRouteHandler)
	w.echo.POST("/login", w.loginRouteHandler)
	w.echo.POST("/logout", w.logoutRouteHandler)
	w.echo.GET("/auth", w.authInfoRouteHandler)

	api := w.echo.Group("/api", w.requireSession)

	api.GET("/enums", w.enumsRouteHandler)
	api.GET("/reports/:report", w.reportRouteHandler)

	api.GET("/:resource", w.listRouteHandler)
	api.POST("/:resource", w.createRouteHandler)
	api.POST("/:resource/actions/:action", w.collectionActionRouteHandler)

	api.GET("/:resource/:id", w.getRouteHandler)
	api.PUT("/:resource/:id", w.updateRouteHandler)
	api.DELETE("/:resource/:id", w.deleteRouteHandler)
	api.POST("/:resource/:id/:action", w.itemActionRouteHandler)
}

// Handler is the full route tree, for embedding or tests.
func (w *Webserver) Handler() http.Handler {
	return w.echo
}

// Run serves until ctx is done, then shuts down gracefully.
func (w *Webserver) Run(ctx context.Context) error {
	addr := w.conf.ListenAddr()
	errCh := make(chan error, 1)

	go func() {
		errCh <- w.echo.Start(addr)
	}()

	w.logger.Info("listening", zap.String("addr", addr), zap.String("backend", w.conf.API.BaseURL))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	w.logger.Info("shutting down")
	return w.echo.Shutdown(shutdownCtx)
}

func (w *Webserver) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()

		err := next(c)
		if err != nil {
			// Let echo write the response so the status below is the real one
			c.Error(err)
		}

		res := c.Response()
		fields := []zap.Field{
			zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
			zap.Int("status", res.Status),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("query", req.URL.RawQuery),
			zap.String("ip", c.RealIP()),
			zap.Duration("latency", time.Since(start)),
			zap.Int64("body_size", res.Size),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		switch status := res.Status; {
		case status >= 500:
			w.logger.Error("Server error", fields...)
		case status >= 400:
			w.logger.Warn("Client error", fields...)
		default:
			w.logger.Info("Request completed", fields...)
		}

		return nil
	}
}

// tracing continues the caller's trace in a server span and hands the request ID on to backend calls.
func (w *Webserver) tracing(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		ctx = apiclient.ContextWithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))

		route := c.Path()
		if route == "" {
			route = req.URL.Path
		}

		ctx, span := w.tracer.Start(ctx, req.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.route", route),
				attribute.String("http.client_ip", c.RealIP()),
			),
		)
		defer span.End()

		c.SetRequest(req.WithContext(ctx))

		err := next(c)

		status := c.Response().Status
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		return err
	}
}
