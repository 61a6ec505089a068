package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/actaso/reflecta-lab-sub001/internal/config"
	"github.com/actaso/reflecta-lab-sub001/internal/contextbuilder"
	"github.com/actaso/reflecta-lab-sub001/internal/gen"
	"github.com/actaso/reflecta-lab-sub001/internal/httpapi"
	"github.com/actaso/reflecta-lab-sub001/internal/llm"
	"github.com/actaso/reflecta-lab-sub001/internal/notify"
	"github.com/actaso/reflecta-lab-sub001/internal/processor"
	"github.com/actaso/reflecta-lab-sub001/internal/scheduler"
	"github.com/actaso/reflecta-lab-sub001/internal/store"
)

// App owns the wired components and the serve loop.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	httpSrv *http.Server
	repo    store.Repo
	sched   *scheduler.Scheduler
}

// New wires the repository, pipeline, processor, scheduler and HTTP surface.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	repo, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	log.Info("sqlite ready", zap.String("path", cfg.DBPath))

	client := llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	pipeline := gen.New(client, log)
	builder := contextbuilder.New(repo, log)
	pusher := notify.NewPushClient(cfg.PushEndpoint, cfg.PushTimeout, log)
	proc := processor.New(repo, builder, pipeline, pusher, log)

	dispatcher := scheduler.NewHTTPDispatcher(cfg.ProcessorURL, cfg.APIToken, cfg.DispatchTimeout)
	sched := scheduler.New(repo, dispatcher, cfg.DispatchParallel, log)

	api := httpapi.New(cfg, log, sched, proc, repo)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return &App{cfg: cfg, log: log, httpSrv: srv, repo: repo, sched: sched}, nil
}

// Run serves HTTP (and the optional in-process trigger) until a shutdown
// signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting coaching service",
		zap.String("env", a.cfg.Env),
		zap.String("http", a.cfg.HTTPAddr),
		zap.Bool("cron", a.cfg.CronEnabled),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cron gocron.Scheduler
	if a.cfg.CronEnabled {
		var err error
		cron, err = gocron.NewScheduler()
		if err != nil {
			return err
		}
		_, err = cron.NewJob(
			gocron.DurationJob(time.Hour),
			gocron.NewTask(func() {
				cycleCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				defer cancel()
				if _, err := a.sched.RunCycle(cycleCtx); err != nil {
					a.log.Error("cron-triggered cycle failed", zap.Error(err))
				}
			}),
		)
		if err != nil {
			return err
		}
		cron.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	}

	if cron != nil {
		_ = cron.Shutdown()
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shCtx); err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	if a.repo != nil {
		_ = a.repo.Close()
	}
	return nil
}
