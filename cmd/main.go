package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tv_bridge/internal/bus"
	"tv_bridge/internal/certstore"
	"tv_bridge/internal/config"
	"tv_bridge/internal/handlers"
	"tv_bridge/internal/logger"
	"tv_bridge/internal/metrics"
	"tv_bridge/internal/prompt"
	"tv_bridge/internal/remote/adb"
	"tv_bridge/internal/repository"
	"tv_bridge/internal/repository/db"
	"tv_bridge/internal/server"
	"tv_bridge/internal/service"

	"github.com/jonboulle/clockwork"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logger.Get(logger.InfoLevel)

	cfg, err := config.Load("configs")
	if err != nil {
		log.Fatalw("error reading config", "err", err)
	}
	logger.SetLevel(cfg.Log.Level)

	// token <subject> prints a journal API token and exits
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(cfg, os.Args[2:]); err != nil {
			log.Fatalw("token_failed", "err", err)
		}
		return
	}

	conn, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	msgBus, err := openBus(cfg, log)
	if err != nil {
		log.Fatalw("failed to init bus", "err", err)
	}
	defer func() { _ = msgBus.Close() }()

	clock := clockwork.NewRealClock()
	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	// wire dependencies
	certs := certstore.New(cfg.Cert.Path, log.Named("certstore"))
	session := adb.New(adb.Options{
		Server:       cfg.TV.ADBServer,
		Host:         cfg.TV.Host,
		Port:         cfg.TV.ADBPort,
		PairingPort:  cfg.TV.PairingPort,
		PollInterval: cfg.TV.PollInterval,
		Credentials:  certs.Load(),
		Clock:        clock,
	}, log.Named("adb"))

	state := service.NewSessionState(clock)
	services := service.NewService(service.Deps{
		Repos:      repository.NewRepository(conn),
		Publisher:  msgBus,
		State:      state,
		Metrics:    m,
		AuthSecret: cfg.Auth.Secret,
		Log:        log,
	})

	inputPrefix, err := inputMacro(cfg)
	if err != nil {
		log.Fatalw("invalid dispatch.input_macro", "err", err)
	}
	scheduler := service.NewScheduler(session, clock, cfg.Dispatch.QueueSize, services.EventLog, m, log.Named("scheduler"))
	dispatcher := service.NewDispatcher(state, scheduler, service.DispatcherOptions{
		InputPrefix: inputPrefix,
		Journal:     services.EventLog,
		Metrics:     m,
		Log:         log.Named("dispatcher"),
	})
	supervisor := service.NewSupervisor(service.SupervisorDeps{
		Session:    session,
		Certs:      certs,
		Prompter:   prompt.NewStdio(),
		Subscriber: msgBus,
		Handler:    dispatcher,
		State:      state,
		Journal:    services.EventLog,
		Metrics:    m,
		Log:        log.Named("session"),
	})
	apiHandler := handlers.NewHandler(services, log).WithMetrics(metrics.Handler(reg))

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go scheduler.Run(ctx)
	go func() {
		if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorw("remote_session_stopped", "err", err)
		}
	}()

	srv := server.New()
	runHTTPServer(srv, cfg.Server.Addr(), apiHandler, log)

	waitForShutdown(cancel, srv, log)
}

// openDB initializes the SQLite journal.
func openDB(cfg *config.Config, log *logger.Logger) (*sql.DB, error) {
	log.Infow("opening journal", "path", cfg.DB.Path)
	return db.InitDB(cfg.DB.Path)
}

func openBus(cfg *config.Config, log *logger.Logger) (bus.Bus, error) {
	if cfg.Bus.Driver == config.DriverMemory {
		log.Infow("using in-process bus; only the power bridge can publish")
		return bus.NewMemory(nil), nil
	}
	r, err := bus.NewRedis(bus.RedisOptions{
		URL:        cfg.Bus.URL,
		ClientName: cfg.Bus.ClientID,
		Username:   cfg.Bus.PublishKey,
		Password:   cfg.Bus.SubscribeKey,
	}, log.Named("bus"))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		// the subscription is retried on the next ready event
		log.Warnw("redis_unreachable", "err", err)
	}
	return r, nil
}

func inputMacro(cfg *config.Config) ([]service.Step, error) {
	if len(cfg.Dispatch.InputMacro) == 0 {
		return nil, nil
	}
	return service.ParseSteps(cfg.Dispatch.InputMacro)
}

func printToken(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s token <subject>", os.Args[0])
	}
	token, err := service.NewAuthService(cfg.Auth.Secret).GenerateToken(args[0])
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, addr string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http listening", "addr", addr)
		if err := srv.Run(addr, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop the scheduler, session and subscription
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
