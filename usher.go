package usher

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/sciplat/usher/config"
	"github.com/sciplat/usher/hooks"
	"github.com/sciplat/usher/session"
)

// Server is the redirect service. It owns the HTTP listener and the cache
// of per-token platform clients.
type Server struct {
	server  *http.Server
	clients *session.Manager
	wg      *sync.WaitGroup
	delay   time.Duration
}

// New builds a server from the passed configuration: it registers the
// builtin hooks, compiles the routing table and wires up the HTTP surface.
// Route definitions with unknown hook names fail here, not on first
// request.
func New(c *config.Config) (*Server, error) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	registry := hooks.Default(c.HookOptions())
	defs, err := c.LoadRoutes()
	if err != nil {
		return nil, err
	}
	table, err := config.BuildTable(defs, registry)
	if err != nil {
		return nil, err
	}

	clients := session.NewManager(session.ManagerOptions{
		BaseURL:      c.BaseURL,
		HTTPTimeout:  c.HTTPTimeoutDuration(),
		SpawnTimeout: c.SpawnTimeoutDuration(),
	})

	routePrefix := c.PathPrefix + "/rewrite/"
	handler := http.NewServeMux()
	handler.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	handler.Handle("/metrics", promhttp.Handler())
	handler.Handle(routePrefix, &resolveHandler{
		routePrefix: routePrefix,
		baseURL:     c.BaseURL,
		userHeader:  c.UserHeader,
		tokenHeader: c.TokenHeader,
		table:       table,
		clients:     clients,
	})

	return &Server{
		server:  &http.Server{Addr: c.Address, Handler: handler},
		clients: clients,
		wg:      &sync.WaitGroup{},
		delay:   c.ShutdownDelayDuration(),
	}, nil
}

// ServeHTTP serves the redirect endpoint together with /health and
// Prometheus-compatible metrics under /metrics.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

func newShutdownFunc(s *Server) func(delay time.Duration) {
	once := &sync.Once{}
	s.wg.Add(1)

	return func(delay time.Duration) {
		once.Do(func() {
			defer s.wg.Done()

			log.Infof("shutting down the server in %s...", delay)
			time.Sleep(delay)
			if err := s.server.Shutdown(context.Background()); err != nil {
				log.Error("unable to shut down the server: ", err)
			}
			if err := s.clients.Close(); err != nil {
				log.Error("unable to close platform clients: ", err)
			}
			log.Info("server shut down")
		})
	}
}

// Run starts a redirect server set up according to the passed
// configuration. It is a blocking call designed to be used as a single
// call/entry point when running the service as a standalone binary. It
// returns when the server is closed, which can happen due to server startup
// errors or a gracefully handled SIGTERM signal. In case of a server
// startup error, the error is returned as is.
func Run(c *config.Config) error {
	s, err := New(c)
	if err != nil {
		return err
	}

	shutdown := newShutdownFunc(s)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM)
	go func() {
		<-sigs
		shutdown(s.delay)
	}()

	log.Infof("listening on %s", s.server.Addr)
	if err = s.server.ListenAndServe(); err != http.ErrServerClosed {
		go shutdown(0)
	} else {
		err = nil
	}

	s.wg.Wait()

	return err
}
