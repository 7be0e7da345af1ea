package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"jobscout/config"
	"jobscout/models"
	"jobscout/services"
	"jobscout/storage"
)

const commandPollInterval = 2 * time.Second

// Scheduler drives monitoring passes on a cron expression or fixed interval
// and polls the local ops store for operator commands. Only one pass runs at
// a time; a tick that lands while a pass is running is skipped.
type Scheduler struct {
	cfg     *config.Config
	monitor *services.MonitorService
	ops     *storage.OpsStore
	cron    *cron.Cron
	ticker  *time.Ticker
	stopCh  chan struct{}

	paused  atomic.Bool
	running atomic.Bool
}

func New(cfg *config.Config, monitor *services.MonitorService, ops *storage.OpsStore) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		monitor: monitor,
		ops:     ops,
		cron:    cron.New(),
		stopCh:  make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	switch {
	case s.cfg.Scheduler.Cron != "":
		slog.Info("scheduler starting", "cron", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.runPass(ctx, "")
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()

	case s.cfg.Scheduler.Interval > 0:
		slog.Info("scheduler starting", "interval", s.cfg.Scheduler.Interval)

		// Catch up after downtime: if the last logged run is more than one
		// interval old, don't wait for the first tick.
		if last, err := s.ops.GetLastRunTime(); err == nil && time.Since(last) >= s.cfg.Scheduler.Interval {
			go s.runPass(ctx, "")
		}

		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runPass(ctx, "")
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()

	default:
		slog.Info("no schedule configured, daemon only responds to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) runPass(ctx context.Context, siteID string) {
	if s.paused.Load() {
		slog.Info("monitoring paused, skipping pass")
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("previous pass still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	run, err := s.monitor.RunPassForSite(ctx, siteID)
	if err != nil {
		slog.Error("monitor pass failed", "error", err)
	}
	if run != nil {
		if err := s.ops.LogRun(run); err != nil {
			slog.Warn("failed to log run locally", "error", err)
		}
	}
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.ops.GetPendingCommands()
			if err != nil {
				slog.Error("get pending commands", "error", err)
				continue
			}

			for i := range cmds {
				cmd := &cmds[i]
				slog.Info("processing command", "command", cmd.Command)
				if err := s.handleCommand(ctx, cmd); err != nil {
					slog.Error("command failed", "command", cmd.Command, "error", err)
				}
				if err := s.ops.MarkCommandProcessed(cmd.ID); err != nil {
					slog.Error("mark command processed", "id", cmd.ID, "error", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdMonitorNow:
		s.runPass(ctx, "")
	case models.CmdScrapeSite:
		params, err := s.ops.ParseCommandParams(cmd)
		if err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
		s.runPass(ctx, params.Site)
	case models.CmdPause:
		s.paused.Store(true)
		slog.Info("monitoring paused")
	case models.CmdResume:
		s.paused.Store(false)
		slog.Info("monitoring resumed")
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
	return nil
}

// TriggerNow runs a pass immediately, bypassing the schedule but not pause.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.runPass(ctx, "")
}

func (s *Scheduler) IsPaused() bool {
	return s.paused.Load()
}
