package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"folderzip/internal/config"
	"folderzip/internal/handlers"
)

// Server wraps the HTTP server
type Server struct {
	logger *zap.Logger
	cfg    *config.Config
	srv    *http.Server
	addr   net.Addr
}

// New wires the routes:
//
//	GET /folders/{id}/export  folder archive
//	GET /health               dependency checks
//	GET /metrics              prometheus, optionally behind basic auth
func New(logger *zap.Logger, cfg *config.Config, exportHandler *handlers.ExportHandler, healthHandler *handlers.HealthHandler) *Server {
	r := mux.NewRouter()
	r.Use(handlers.RequestIDMiddleware)
	r.Use(handlers.AccessLog(logger))

	var metricsHandler http.Handler = promhttp.Handler()
	if cfg.MetricsUsername != "" && cfg.MetricsPassword != "" {
		metricsHandler = handlers.BasicAuth(cfg.MetricsUsername, cfg.MetricsPassword)(metricsHandler)
	}
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	r.Handle("/folders/{id}/export", withDeadline(cfg.RequestTimeout, http.HandlerFunc(exportHandler.Export))).
		Methods(http.MethodGet)

	return &Server{
		logger: logger,
		cfg:    cfg,
		srv: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// withDeadline bounds the request context; the export stops scheduling
// downloads once it expires
func withDeadline(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start begins serving in the background
func (s *Server) Start() error {
	if s.cfg.EnableHTTPS {
		return s.startHTTPS()
	}
	return s.startHTTP()
}

// Addr returns the listening address once started
func (s *Server) Addr() net.Addr { return s.addr }

func (s *Server) startHTTP() error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	s.logger.Info("starting HTTP server", zap.String("addr", s.addr.String()))

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) startHTTPS() error {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(s.cfg.LetsEncryptDomains...),
		Cache:      autocert.DirCache(s.cfg.LetsEncryptCacheDir),
		Email:      s.cfg.LetsEncryptEmail,
	}

	// ACME challenges and redirects
	go func() {
		s.logger.Info("starting HTTP server for challenges/redirects", zap.String("addr", ":80"))
		if err := http.ListenAndServe(":80", m.HTTPHandler(nil)); err != nil {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.srv.Addr = ":443"
	s.srv.TLSConfig = &tls.Config{GetCertificate: m.GetCertificate}
	s.logger.Info("starting HTTPS server", zap.String("addr", s.srv.Addr), zap.Strings("domains", s.cfg.LetsEncryptDomains))

	go func() {
		if err := s.srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Fatal("HTTPS server error", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown drains in-flight exports
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then shuts down gracefully
func (s *Server) WaitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	<-stop

	s.logger.Info("shutting down server...")

	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return err
	}

	s.logger.Info("server stopped")
	return nil
}
