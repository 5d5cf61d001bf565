// Package engine implements the progress engine: the single owner of one
// learner's in-memory progress state and companion settings, with
// write-through persistence to a durable record store and event publication
// toward UI and gamification subscribers.
//
// The engine is a single-writer component. The hosting process calls it from
// one goroutine (the UI event loop or the stdin reader in progressd), so the
// engine carries no internal lock; what it protects against instead is
// cross-process interference, via the optional stamped-store extension.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/companion"
	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/progress"
	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/shared"
	"github.com/nikhillinit/ACFStudy-sub002/internal/infrastructure/persistence/record"
	"github.com/nikhillinit/ACFStudy-sub002/pkg/logger"
	"github.com/nikhillinit/ACFStudy-sub002/pkg/timeutil"
)

// ErrNotInitialized is returned when an operation runs before Initialize.
var ErrNotInitialized = errors.New("engine: not initialized")

// Config assembles the engine's collaborators.
type Config struct {
	// LearnerID scopes record keys on shared backends. Empty is valid for
	// local single-learner stores.
	LearnerID string

	// Store is the durable record store. Required.
	Store record.Store

	// Bus receives domain events after each applied mutation. Optional;
	// nil disables publication.
	Bus shared.EventPublisher

	// Clock is the time source for streak day-boundary decisions.
	// Defaults to the wall clock in the host's local timezone.
	Clock timeutil.Clock

	// Logger for structured logging. Defaults to stdout at info level.
	Logger *logger.Logger

	// WeeklyGoalSeconds overrides the default weekly study goal when the
	// engine starts from a fresh state. 0 keeps the built-in default; an
	// existing record's goal is never overridden.
	WeeklyGoalSeconds int

	// MilestoneStreakStep fires a milestone event whenever the streak
	// reaches a multiple of this step. 0 means the default of 3; negative
	// disables streak milestones.
	MilestoneStreakStep int

	// MilestoneProblemStep fires a milestone event whenever totalProblems
	// reaches a multiple of this step. 0 means the default of 10; negative
	// disables problem-count milestones.
	MilestoneProblemStep int
}

// Default milestone steps.
const (
	DefaultMilestoneStreakStep  = 3
	DefaultMilestoneProblemStep = 10
)

// Engine owns the progress state and companion settings for one learner.
type Engine struct {
	learnerID string
	store     record.Store
	stamped   record.StampedStore // nil when the backend has no stamps
	bus       shared.EventPublisher
	clock     timeutil.Clock
	log       *logger.Logger

	state       *progress.State
	settings    companion.Settings
	weeklyGoal  int
	streakStep  int
	problemStep int

	// Write stamps, used only with a StampedStore backend.
	progressStamp int64
	settingsStamp int64

	initialized bool
}

// New creates an engine. Call Initialize before recording events.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, shared.NewDomainError("engine", "New", shared.ErrInvalidArgument, "record store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.SystemClock(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	e := &Engine{
		learnerID: cfg.LearnerID,
		store:     cfg.Store,
		bus:       cfg.Bus,
		clock:     cfg.Clock,
		log:       cfg.Logger.With(logger.Component("engine"), logger.LearnerID(cfg.LearnerID)),

		weeklyGoal:  cfg.WeeklyGoalSeconds,
		streakStep:  milestoneStep(cfg.MilestoneStreakStep, DefaultMilestoneStreakStep),
		problemStep: milestoneStep(cfg.MilestoneProblemStep, DefaultMilestoneProblemStep),
	}
	if ss, ok := cfg.Store.(record.StampedStore); ok {
		e.stamped = ss
	}
	return e, nil
}

// milestoneStep resolves a configured step: zero means the default,
// negative disables.
func milestoneStep(configured, fallback int) int {
	if configured == 0 {
		return fallback
	}
	if configured < 0 {
		return 0
	}
	return configured
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Initialize loads both records from the store. Absent records yield the
// documented defaults; corrupt or unreadable records are logged and replaced
// by defaults. Initialization never fails because of storage content: the
// engine degrades to memory-only operation rather than refusing to start.
func (e *Engine) Initialize(ctx context.Context) error {
	e.state = e.loadProgress(ctx)
	e.settings = e.loadSettings(ctx)
	e.initialized = true

	e.log.Info("engine initialized",
		logger.Int("total_problems", e.state.TotalProblems),
		logger.StreakDays(e.state.StudyStreak),
		logger.Int("topics_tracked", len(e.state.Topics)),
	)
	return nil
}

func (e *Engine) loadProgress(ctx context.Context) *progress.State {
	key := record.ScopedKey(e.learnerID, record.KeyProgress)

	data, stamp, err := e.getRecord(ctx, key)
	if err != nil {
		if !errors.Is(err, shared.ErrRecordAbsent) {
			e.log.Warn("progress record unreadable, starting from defaults",
				logger.RecordKey(key), logger.Err(err))
		}
		e.progressStamp = stamp
		return e.freshState()
	}

	state, err := decodeProgress(data)
	if err != nil {
		e.log.Warn("progress record corrupt, starting from defaults",
			logger.RecordKey(key), logger.Err(err))
		e.progressStamp = stamp
		return e.freshState()
	}

	e.progressStamp = stamp
	return state
}

func (e *Engine) freshState() *progress.State {
	s := progress.NewState()
	if e.weeklyGoal > 0 {
		s.Analytics.WeeklyGoal = e.weeklyGoal
	}
	return s
}

func (e *Engine) loadSettings(ctx context.Context) companion.Settings {
	key := record.ScopedKey(e.learnerID, record.KeyCompanionSettings)

	data, stamp, err := e.getRecord(ctx, key)
	if err != nil {
		if !errors.Is(err, shared.ErrRecordAbsent) {
			e.log.Warn("settings record unreadable, starting from defaults",
				logger.RecordKey(key), logger.Err(err))
		}
		e.settingsStamp = stamp
		return companion.DefaultSettings()
	}

	settings, err := decodeSettings(data)
	if err != nil {
		e.log.Warn("settings record corrupt, starting from defaults",
			logger.RecordKey(key), logger.Err(err))
		e.settingsStamp = stamp
		return companion.DefaultSettings()
	}

	e.settingsStamp = stamp
	return settings
}

// getRecord reads through the stamped interface when the backend offers it,
// so later writes can detect a second process sharing the store.
func (e *Engine) getRecord(ctx context.Context, key string) ([]byte, int64, error) {
	if e.stamped != nil {
		return e.stamped.GetStamped(ctx, key)
	}
	data, err := e.store.Get(ctx, key)
	return data, 0, err
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// RecordProblemCompletion applies one completion event and persists the
// updated state.
//
// On a storage write failure the returned snapshot still reflects the
// applied event: the in-memory state is authoritative for the session, and
// the error is the side channel telling the caller that progress may not
// survive a restart. Validation errors leave state, store and bus untouched.
func (e *Engine) RecordProblemCompletion(ctx context.Context, topic, problemID string, isCorrect bool) (progress.Snapshot, error) {
	if !e.initialized {
		return progress.Snapshot{}, ErrNotInitialized
	}

	now := e.clock.Now()
	res, err := e.state.ApplyCompletion(topic, problemID, isCorrect, now)
	if err != nil {
		return e.state.Snapshot(), shared.WrapError("engine", "RecordProblemCompletion", shared.ErrEmptyValue, "validate completion event", err)
	}

	persistErr := e.persistProgress(ctx)

	e.log.Debug("problem completion recorded",
		logger.Topic(topic),
		logger.ProblemID(problemID),
		logger.Bool("is_correct", isCorrect),
		logger.Bool("first_completion", res.FirstCompletion),
		logger.Float64("topic_accuracy", res.TopicAccuracy),
	)

	correlationID := uuid.NewString()

	ev := shared.NewProblemCompletedEvent(e.learnerID, topic, problemID, isCorrect, now)
	ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
	ev.FirstCompletion = res.FirstCompletion
	ev.TopicAccuracy = res.TopicAccuracy
	ev.OverallAccuracy = e.state.OverallAccuracy
	ev.TotalProblems = e.state.TotalProblems
	e.publish(ev)

	e.publishStreakChange(res.Streak, correlationID, now)
	e.publishProblemMilestone(correlationID, now)

	return e.state.Snapshot(), persistErr
}

// RecordStudySession applies one study session of durationSeconds and
// persists the updated state. Same write-failure contract as
// RecordProblemCompletion.
func (e *Engine) RecordStudySession(ctx context.Context, durationSeconds int) (progress.Snapshot, error) {
	if !e.initialized {
		return progress.Snapshot{}, ErrNotInitialized
	}

	now := e.clock.Now()
	res, err := e.state.ApplySession(durationSeconds, now)
	if err != nil {
		return e.state.Snapshot(), shared.WrapError("engine", "RecordStudySession", shared.ErrNegativeValue, "validate session event", err)
	}

	persistErr := e.persistProgress(ctx)

	e.log.Debug("study session recorded",
		logger.Int("duration_seconds", durationSeconds),
		logger.StreakDays(e.state.StudyStreak),
	)

	correlationID := uuid.NewString()

	ev := shared.NewSessionRecordedEvent(e.learnerID, durationSeconds, now)
	ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
	ev.DailyStudyTime = e.state.Analytics.DailyStudyTime
	ev.StudyStreak = e.state.StudyStreak
	e.publish(ev)

	e.publishStreakChange(res.Streak, correlationID, now)

	return e.state.Snapshot(), persistErr
}

// ProgressSnapshot returns a deep copy of the current progress state.
func (e *Engine) ProgressSnapshot() progress.Snapshot {
	if !e.initialized {
		return progress.Snapshot{}
	}
	return e.state.Snapshot()
}

// AnalyticsSnapshot returns the merged read-only analytics view. Pure:
// neither mutates state nor touches the store.
func (e *Engine) AnalyticsSnapshot() progress.AnalyticsView {
	if !e.initialized {
		return progress.AnalyticsView{}
	}
	return e.state.AnalyticsView()
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPANION SETTINGS OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Settings returns a copy of the current companion settings.
func (e *Engine) Settings() companion.Settings {
	return e.settings
}

// UpdateCompanionSettings merges the updates over the current settings and
// persists the result. Invalid enum values reject the whole update.
//
// A no-op update (all values already current) deliberately skips the write
// and the event: the stored record already equals the merged settings, so
// rewriting it changes nothing observable, and subscribers are only told
// about actual changes.
func (e *Engine) UpdateCompanionSettings(ctx context.Context, updates companion.Updates) (companion.Settings, error) {
	if !e.initialized {
		return companion.Settings{}, ErrNotInitialized
	}

	if err := updates.Validate(); err != nil {
		return e.settings, shared.WrapError("engine", "UpdateCompanionSettings", shared.ErrValueOutOfRange, "validate settings update", err)
	}

	merged, changed := updates.Apply(e.settings)
	if len(changed) == 0 {
		return e.settings, nil
	}

	e.settings = merged
	persistErr := e.persistSettings(ctx)

	e.log.Info("companion settings updated", logger.F("changed_fields", changed))

	ev := shared.NewSettingsUpdatedEvent(e.learnerID, changed, e.clock.Now())
	ev.BaseEvent = ev.BaseEvent.WithCorrelationID(uuid.NewString())
	e.publish(ev)

	return e.settings, persistErr
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE
// ══════════════════════════════════════════════════════════════════════════════

func (e *Engine) persistProgress(ctx context.Context) error {
	key := record.ScopedKey(e.learnerID, record.KeyProgress)

	data, err := encodeProgress(e.state)
	if err != nil {
		return err
	}

	stamp, err := e.setRecord(ctx, key, data, e.progressStamp)
	if err != nil {
		e.log.Warn("progress write failed, progress may not survive a restart",
			logger.RecordKey(key), logger.Err(err))
		return err
	}
	e.progressStamp = stamp
	return nil
}

func (e *Engine) persistSettings(ctx context.Context) error {
	key := record.ScopedKey(e.learnerID, record.KeyCompanionSettings)

	data, err := encodeSettings(e.settings)
	if err != nil {
		return err
	}

	stamp, err := e.setRecord(ctx, key, data, e.settingsStamp)
	if err != nil {
		e.log.Warn("settings write failed, settings may not survive a restart",
			logger.RecordKey(key), logger.Err(err))
		return err
	}
	e.settingsStamp = stamp
	return nil
}

func (e *Engine) setRecord(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	if e.stamped != nil {
		return e.stamped.SetStamped(ctx, key, data, expected)
	}
	return 0, e.store.Set(ctx, key, data)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT PUBLICATION
// ══════════════════════════════════════════════════════════════════════════════

// publish hands an event to the bus. Publication happens after the state
// mutation and regardless of the persist outcome: subscribers follow the
// in-memory truth the caller also sees. Bus errors are logged, never
// propagated into the operation result.
func (e *Engine) publish(ev shared.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ev); err != nil {
		e.log.Error("event publication failed",
			logger.String("event_type", string(ev.EventType())), logger.Err(err))
	}
}

func (e *Engine) publishStreakChange(change progress.StreakChange, correlationID string, now time.Time) {
	if e.bus == nil {
		return
	}

	if change.Broken {
		ev := shared.NewStreakBrokenEvent(e.learnerID, change.Previous, change.DaysMissed, now)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
		e.publish(ev)
	}
	if change.Advanced || change.Broken {
		ev := shared.NewStreakUpdatedEvent(e.learnerID, e.state.StudyStreak, e.state.Analytics.LongestStreak, now)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
		e.publish(ev)
	}

	// Milestone fact: the streak reached a multiple of the configured step.
	if change.Advanced && e.streakStep > 0 && e.state.StudyStreak%e.streakStep == 0 {
		ev := shared.NewMilestoneReachedEvent(e.learnerID, "streak", e.state.StudyStreak, now)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
		e.publish(ev)
	}
}

// publishProblemMilestone reports round problem totals as milestone facts.
func (e *Engine) publishProblemMilestone(correlationID string, now time.Time) {
	if e.bus == nil || e.problemStep <= 0 {
		return
	}
	if e.state.TotalProblems%e.problemStep != 0 {
		return
	}
	ev := shared.NewMilestoneReachedEvent(e.learnerID, "problems", e.state.TotalProblems, now)
	ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
	e.publish(ev)
}
