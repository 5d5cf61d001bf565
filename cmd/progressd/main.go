// Package main is the entry point for progressd, the local runner for the
// ACF Study progress engine.
//
// progressd wires config -> record store -> event bus -> engine, then reads
// newline-delimited JSON events from stdin and prints the analytics view
// after each applied event. It exists for local and manual operation; a
// hosting application embeds the engine package directly instead.
//
// Input lines:
//
//	{"type":"completion","topic":"bonds","problemId":"b-1","isCorrect":true}
//	{"type":"session","durationSeconds":600}
//	{"type":"settings","frequency":"minimal","personalizedName":"Alex"}
//	{"type":"snapshot"}
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nikhillinit/ACFStudy-sub002/config"
	"github.com/nikhillinit/ACFStudy-sub002/internal/application/engine"
	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/companion"
	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/shared"
	"github.com/nikhillinit/ACFStudy-sub002/internal/infrastructure/messaging"
	badgerstore "github.com/nikhillinit/ACFStudy-sub002/internal/infrastructure/persistence/badger"
	"github.com/nikhillinit/ACFStudy-sub002/internal/infrastructure/persistence/postgres"
	"github.com/nikhillinit/ACFStudy-sub002/internal/infrastructure/persistence/record"
	redisstore "github.com/nikhillinit/ACFStudy-sub002/internal/infrastructure/persistence/redis"
	"github.com/nikhillinit/ACFStudy-sub002/pkg/logger"
	"github.com/nikhillinit/ACFStudy-sub002/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})
	log.Info("starting progressd",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("backend", cfg.Storage.Backend),
		logger.LearnerID(cfg.App.LearnerID),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. RECORD STORE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}
	defer func() {
		log.Info("closing record store")
		if err := store.Close(); err != nil {
			log.Error("store close failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer bus.Close()

	eventLog := log.With(logger.Component("events"))
	if err := bus.SubscribeAll(func(ev shared.Event) error {
		eventLog.Info("event",
			logger.String("event_type", string(ev.EventType())),
			logger.String("aggregate_id", ev.AggregateID()),
			logger.Time("occurred_at", ev.OccurredAt()),
		)
		return nil
	}); err != nil {
		return fmt.Errorf("subscribe event logger: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	eng, err := engine.New(engine.Config{
		LearnerID:            cfg.App.LearnerID,
		Store:                store,
		Bus:                  bus,
		Clock:                timeutil.SystemClock(cfg.App.Location),
		Logger:               log,
		WeeklyGoalSeconds:    cfg.App.WeeklyGoalSeconds,
		MilestoneStreakStep:  cfg.App.MilestoneStreakStep,
		MilestoneProblemStep: cfg.App.MilestoneProblemStep,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	if err := eng.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. STDIN EVENT LOOP
	// ─────────────────────────────────────────────────────────────────────────
	return eventLoop(ctx, eng, log)
}

// openStore builds the record store selected by STORAGE_BACKEND.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (record.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return record.NewMemoryStore(), nil

	case config.BackendBadger:
		return badgerstore.NewStore(badgerstore.Config{
			Path:       cfg.Badger.Path,
			SyncWrites: cfg.Badger.SyncWrites,
			Logger:     log,
		})

	case config.BackendRedis:
		return redisstore.NewStore(redisstore.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

	case config.BackendPostgres:
		return postgres.NewStore(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       int32(cfg.Postgres.MaxConns),
			ConnectTimeout: cfg.Postgres.ConnectTimeout,
		})

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// inputEvent is one stdin line. Type selects which fields matter.
type inputEvent struct {
	Type string `json:"type"`

	// completion
	Topic     string `json:"topic"`
	ProblemID string `json:"problemId"`
	IsCorrect bool   `json:"isCorrect"`

	// session
	DurationSeconds int `json:"durationSeconds"`

	// settings (pointers: absent means unchanged)
	Frequency          *string `json:"frequency"`
	EncouragementStyle *string `json:"encouragementStyle"`
	ShowCelebrations   *bool   `json:"showCelebrations"`
	ShowTips           *bool   `json:"showTips"`
	ShowProgress       *bool   `json:"showProgress"`
	PersonalizedName   *string `json:"personalizedName"`
}

func eventLoop(ctx context.Context, eng *engine.Engine, log *logger.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error("stdin read failed", logger.Err(err))
		}
	}()

	out := json.NewEncoder(os.Stdout)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return nil

		case line, ok := <-lines:
			if !ok {
				log.Info("stdin closed, shutting down")
				return nil
			}
			if line == "" {
				continue
			}

			var ev inputEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				log.Warn("unparsable input line skipped", logger.Err(err))
				continue
			}

			if err := applyEvent(ctx, eng, ev, out); err != nil {
				// Storage write failures already surfaced to the user via
				// the warning path; anything else is an input problem.
				log.Warn("event rejected", logger.String("type", ev.Type), logger.Err(err))
			}
		}
	}
}

func applyEvent(ctx context.Context, eng *engine.Engine, ev inputEvent, out *json.Encoder) error {
	switch ev.Type {
	case "completion":
		_, err := eng.RecordProblemCompletion(ctx, ev.Topic, ev.ProblemID, ev.IsCorrect)
		if err != nil && !shared.IsStorageWrite(err) {
			return err
		}
		return out.Encode(eng.AnalyticsSnapshot())

	case "session":
		_, err := eng.RecordStudySession(ctx, ev.DurationSeconds)
		if err != nil && !shared.IsStorageWrite(err) {
			return err
		}
		return out.Encode(eng.AnalyticsSnapshot())

	case "settings":
		updates := companion.Updates{
			ShowCelebrations: ev.ShowCelebrations,
			ShowTips:         ev.ShowTips,
			ShowProgress:     ev.ShowProgress,
			PersonalizedName: ev.PersonalizedName,
		}
		if ev.Frequency != nil {
			f := companion.Frequency(*ev.Frequency)
			updates.Frequency = &f
		}
		if ev.EncouragementStyle != nil {
			s := companion.EncouragementStyle(*ev.EncouragementStyle)
			updates.EncouragementStyle = &s
		}

		settings, err := eng.UpdateCompanionSettings(ctx, updates)
		if err != nil && !shared.IsStorageWrite(err) {
			return err
		}
		return out.Encode(settings)

	case "snapshot":
		return out.Encode(eng.AnalyticsSnapshot())

	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}
