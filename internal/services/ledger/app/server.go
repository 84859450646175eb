package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/louisbranch/walletsaga/internal/platform/timeouts"
	httpapi "github.com/louisbranch/walletsaga/internal/services/ledger/api/http"
	"github.com/louisbranch/walletsaga/internal/services/ledger/coordinator"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/metrics"
	"github.com/louisbranch/walletsaga/internal/services/ledger/orchestrator"
	"github.com/louisbranch/walletsaga/internal/services/ledger/publish"
	"github.com/louisbranch/walletsaga/internal/services/ledger/router"
	"github.com/louisbranch/walletsaga/internal/services/ledger/saga"
	"github.com/louisbranch/walletsaga/internal/services/ledger/service"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage/integrity"
	storagesqlite "github.com/louisbranch/walletsaga/internal/services/ledger/storage/sqlite"
	"github.com/louisbranch/walletsaga/internal/services/ledger/timer"
	"github.com/louisbranch/walletsaga/internal/services/ledger/view"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Health service names reported by the gRPC health endpoint, one per
// background loop.
const (
	HealthServiceRouter       = "walletsaga.ledger.router"
	HealthServiceTimer        = "walletsaga.ledger.timer"
	HealthServiceOrchestrator = "walletsaga.ledger.orchestrator"
)

// HealthServices lists every named health service in reporting order.
var HealthServices = []string{HealthServiceRouter, HealthServiceTimer, HealthServiceOrchestrator}

// Server hosts the ledger HTTP API, its background loops and the gRPC
// health endpoint.
type Server struct {
	listener     net.Listener
	httpListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	httpServer   *http.Server

	store     *storagesqlite.Store
	redis     redis.UniversalClient
	publisher publish.Publisher

	router       *router.Router
	timers       *timer.Service
	orchestrator *orchestrator.Orchestrator
}

// New opens storage and wires every ledger component without starting any
// loop. Serve starts them.
func New(cfg Config) (*Server, error) {
	cfg = cfg.normalized()

	keyring := cfg.Keyring
	if keyring == nil {
		var err error
		keyring, err = integrity.KeyringFromEnv()
		if err != nil {
			return nil, fmt.Errorf("load event keyring: %w", err)
		}
	}
	registries, err := service.BuildRegistries()
	if err != nil {
		return nil, fmt.Errorf("build registries: %w", err)
	}
	store, err := openStore(cfg, keyring, registries)
	if err != nil {
		return nil, err
	}

	s := &Server{store: store}
	if err := s.wire(cfg, registries); err != nil {
		s.closeResources()
		return nil, err
	}
	return s, nil
}

func (s *Server) wire(cfg Config, registries service.Registries) error {
	dispatcher, err := service.NewDispatcher(service.Config{
		Registries:    registries,
		Events:        s.store,
		Snapshots:     s.store,
		SnapshotEvery: cfg.SnapshotEvery,
		Now:           cfg.Now,
	})
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}
	wallets := service.NewWallets(dispatcher)
	transfers := service.NewTransfers(dispatcher)
	workflows := service.NewWorkflows(dispatcher)

	balances, err := s.balanceStore(cfg)
	if err != nil {
		return err
	}
	publisher, err := publish.New(cfg.Publisher)
	if err != nil {
		return fmt.Errorf("build publisher: %w", err)
	}
	s.publisher = publisher

	observer := metrics.New()
	observer.WatchOutbox(s.store)

	s.timers = timer.New(s.store, dispatcher, timer.Config{PollInterval: cfg.TimerPollInterval}, cfg.Now)
	s.router = router.New(s.store, s.store, router.NewAttemptStoreRecorder(s.store), router.Config{
		PollInterval: cfg.RouterPollInterval,
		BatchSize:    cfg.RouterBatchSize,
		Workers:      cfg.RouterWorkers,
	}, cfg.Now).WithObserver(observer)

	saga.Register(s.router, transfers, wallets, s.timers, cfg.TransferTimeout)
	projector := view.Projector{Store: balances}
	s.router.On(projector, projector.EventTypes()...)
	publisherReactor := publish.Reactor{Publisher: publisher}
	s.router.On(publisherReactor, publisherReactor.EventTypes()...)
	s.router.On(saga.LogReactor{}, walletEventTypes()...)

	s.orchestrator = orchestrator.New(workflows, wallets, s.store, orchestrator.Config{
		StepRetries: cfg.StepRetries,
	}).WithObserver(observer)

	handler := httpapi.NewHandler(httpapi.Config{
		Wallets:       wallets,
		Balances:      view.Balances{Store: balances},
		Choreography:  coordinator.NewChoreography(transfers, wallets),
		Orchestration: coordinator.NewOrchestration(s.orchestrator),
		Metrics:       observer.Handler(),
	})

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	s.httpListener = httpListener
	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.GRPCPort, err)
	}
	s.listener = listener
	s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, name := range HealthServices {
		s.health.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return nil
}

func (s *Server) balanceStore(cfg Config) (storage.BalanceStore, error) {
	if cfg.RedisAddr == "" {
		return s.store, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.DependencyPing)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	s.redis = client
	return view.NewRedisStore(client, redisKeyPrefix), nil
}

func walletEventTypes() []event.Type {
	return []event.Type{
		wallet.EventTypeCreated,
		wallet.EventTypeDepositInitiated,
		wallet.EventTypeWithdrawInitiated,
		wallet.EventTypeDeposited,
		wallet.EventTypeWithdrawn,
		wallet.EventTypeTransactionCancelled,
		wallet.EventTypeTransactionCompleted,
	}
}

// Addr returns the gRPC health listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HTTPAddr returns the API listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves a ledger until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the listeners and background loops and blocks until the
// context ends or one of them fails.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeResources()

	log.Printf("ledger health listening at %v", s.listener.Addr())
	log.Printf("ledger API listening at %v", s.httpListener.Addr())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})
	group.Go(s.loop(groupCtx, HealthServiceRouter, s.router.Run))
	group.Go(s.loop(groupCtx, HealthServiceTimer, s.timers.Run))
	group.Go(s.loop(groupCtx, HealthServiceOrchestrator, s.orchestrator.Run))
	group.Go(func() error {
		<-groupCtx.Done()
		s.shutdown()
		return nil
	})
	return group.Wait()
}

// loop runs one background loop and mirrors its liveness into health.
func (s *Server) loop(ctx context.Context, name string, run func(context.Context) error) func() error {
	return func() error {
		s.health.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
		err := run(ctx)
		s.health.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func (s *Server) shutdown() {
	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown HTTP: %v", err)
	}
	s.grpcServer.GracefulStop()
}

func (s *Server) closeResources() {
	if s == nil {
		return
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Printf("close publisher: %v", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close ledger store: %v", err)
		}
	}
}

func openStore(cfg Config, keyring *integrity.Keyring, registries service.Registries) (*storagesqlite.Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := storagesqlite.Open(cfg.DBPath, keyring, registries.Events,
		storagesqlite.WithOutboxEnabled(true),
		storagesqlite.WithClock(cfg.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}
