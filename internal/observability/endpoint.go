package observability

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/rtbridge/internal/conf"
	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/logger"
	metricspkg "github.com/tphakala/rtbridge/internal/observability/metrics"
)

const readHeaderTimeout = 5 * time.Second

// HealthFunc reports the state served on /healthz. It is encoded as JSON.
type HealthFunc func() any

// Endpoint serves /metrics, /healthz and, in debug mode, /debug/pprof.
type Endpoint struct {
	listenAddress string
	debug         bool
	metrics       *Metrics
	health        HealthFunc

	echo     *echo.Echo
	server   *http.Server
	listener net.Listener
}

// NewEndpoint creates the endpoint. It returns an error if telemetry is
// disabled in the settings. health may be nil.
func NewEndpoint(settings *conf.Settings, metrics *Metrics, health HealthFunc) (*Endpoint, error) {
	if !settings.Telemetry.Enabled {
		return nil, errors.Newf("telemetry not enabled in settings").
			Component("observability").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if health == nil {
		health = func() any { return map[string]string{"status": "ok"} }
	}

	e := &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		debug:         settings.Debug,
		metrics:       metrics,
		health:        health,
	}
	e.echo = e.routes()
	return e, nil
}

func (e *Endpoint) routes() *echo.Echo {
	ec := echo.New()
	ec.HideBanner = true
	ec.HidePort = true

	ec.GET("/metrics", echo.WrapHandler(e.metrics.Handler()))
	ec.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, e.health())
	})

	if e.debug {
		ec.GET("/debug/pprof/", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
		ec.GET("/debug/pprof/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
		ec.GET("/debug/pprof/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
		ec.GET("/debug/pprof/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
		ec.GET("/debug/pprof/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))
		ec.GET("/debug/pprof/goroutine", echo.WrapHandler(pprof.Handler("goroutine")))
		ec.GET("/debug/pprof/heap", echo.WrapHandler(pprof.Handler("heap")))
	}
	return ec
}

// Start listens on the configured address and serves until quitChan is
// closed, then shuts the server down gracefully. wg is done once the server
// has stopped.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Context("listen", e.listenAddress).
			Build()
	}
	e.listener = ln
	e.server = &http.Server{
		Handler:           e.echo,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	wg.Go(func() {
		log.Info("telemetry endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("telemetry HTTP server error", logger.Error(err))
		}
	})
	wg.Go(func() {
		e.gracefulShutdown(quitChan)
	})
	return nil
}

// gracefulShutdown waits for the quit signal and shuts down the server gracefully.
func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}) {
	<-quitChan
	log.Info("stopping telemetry server")
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		log.Error("telemetry server shutdown error", logger.Error(err))
	}
}

// Addr returns the address the endpoint is listening on, or the configured
// address before Start.
func (e *Endpoint) Addr() string {
	if e.listener == nil {
		return e.listenAddress
	}
	return e.listener.Addr().String()
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
