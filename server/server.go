package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/internal/cron"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/repository"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/services"
)

// Server is the headless cache daemon: sync worker, maintenance crons and
// the service graph, wired for a graceful shutdown.
type Server struct {
	config       *config.Config
	log          logger.Logger
	services     *services.Services
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(db)

	svcs, err := services.InitServices(cfg, db, repos, services.ExternalCapabilities{
		Prompt:   services.NoopPrompt{},
		Notifier: services.NoopNotifier{},
	}, appLogger)
	if err != nil {
		return nil, err
	}

	cronManager := cron.NewCronManager(cfg, appLogger, svcs.Session, repos, svcs.PrefetchService, svcs.QuotaService)

	return &Server{
		config:       cfg,
		log:          appLogger,
		services:     svcs,
		repositories: repos,
		cronManager:  cronManager,
		tracerCloser: closer,
	}, nil
}

// Initialize binds the session to the first configured account so the
// maintenance jobs have a cancellation domain to run under.
func (s *Server) Initialize(ctx context.Context) error {
	accounts, err := s.repositories.AccountRepository.GetAll(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		s.log.Warn("No accounts configured; daemon idles until one is added")
		return nil
	}
	s.services.Session.SetActiveAccount(accounts[0].ID)
	s.log.Infof("Active account: %s", accounts[0].Email)
	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		log.Printf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Initialize(ctx); err != nil {
		return err
	}

	log.Println("Starting sync worker...")
	s.services.SyncWorker.Start()

	log.Println("Starting cron manager...")
	s.wrapGoroutine("cron_manager", func() {
		s.cronManager.Start()
	})

	log.Println("MailVault is now running. Press Ctrl+C to exit.")
	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	cronDone := make(chan struct{})
	go s.wrapGoroutine("cron_shutdown", func() {
		defer close(cronDone)
		s.cronManager.Stop()
	})
	select {
	case <-cronDone:
		log.Println("Cron manager stopped gracefully")
	case <-time.After(10 * time.Second):
		log.Println("Cron manager stop timed out, forcing exit")
	}

	log.Println("Stopping sync worker...")
	s.services.SyncWorker.Stop()

	s.services.Session.Dispose()
	log.Println("Shutdown complete")
	return nil
}
