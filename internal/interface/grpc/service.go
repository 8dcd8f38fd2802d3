package grpc_interface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/application"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/telemetry"
	"github.com/ArkLabsHQ/bitswap/internal/interface/grpc/handlers"
	"github.com/ArkLabsHQ/bitswap/internal/interface/grpc/interceptors"
	"github.com/ArkLabsHQ/bitswap/internal/interface/web"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type service struct {
	cfg               Config
	appSvc            *application.Service
	grpcServer        *grpc.Server
	httpServer        *http.Server
	pyroscopeShutdown func()
}

// NewService serves the grpc health service and the http swap API.
func NewService(cfg Config, appSvc *application.Service) (*service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}

	pyroscopeShutdown, err := telemetry.InitPyroscope(cfg.PyroscopeURL, appSvc.BuildInfo.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pyroscope: %s", err)
	}

	grpcServer := grpc.NewServer(interceptors.ServerOptions(cfg.SentryEnabled)...)
	grpchealth.RegisterHealthServer(grpcServer, handlers.NewHealthHandler(appSvc))
	reflection.Register(grpcServer)

	httpServer := &http.Server{
		Addr: cfg.httpAddress(),
		Handler: web.NewService(appSvc, web.Config{
			SentryEnabled: cfg.SentryEnabled,
			NoMetrics:     cfg.NoMetrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &service{
		cfg:               cfg,
		appSvc:            appSvc,
		grpcServer:        grpcServer,
		httpServer:        httpServer,
		pyroscopeShutdown: pyroscopeShutdown,
	}, nil
}

func (s *service) Start() error {
	if err := s.appSvc.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start app service: %w", err)
	}

	lis, err := net.Listen("tcp", s.cfg.grpcAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("grpc server stopped")
		}
	}()
	log.Infof("started grpc server at %s", s.cfg.grpcAddress())

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped")
		}
	}()
	log.Infof("started http server at %s", s.cfg.httpAddress())

	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to shutdown http server")
	}
	s.grpcServer.GracefulStop()
	log.Info("stopped grpc and http servers")

	s.appSvc.Stop()
	log.Info("stopped app service")

	if s.pyroscopeShutdown != nil {
		s.pyroscopeShutdown()
	}
}
