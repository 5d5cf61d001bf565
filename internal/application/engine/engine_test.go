package engine

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/companion"
	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/progress"
	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/shared"
	"github.com/nikhillinit/ACFStudy-sub002/internal/infrastructure/persistence/record"
	"github.com/nikhillinit/ACFStudy-sub002/pkg/logger"
	"github.com/nikhillinit/ACFStudy-sub002/pkg/timeutil"
)

var day0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// captureBus records published events for assertions.
type captureBus struct {
	events []shared.Event
}

func (b *captureBus) Publish(ev shared.Event) error {
	b.events = append(b.events, ev)
	return nil
}

func (b *captureBus) typesSeen() []shared.EventType {
	types := make([]shared.EventType, 0, len(b.events))
	for _, ev := range b.events {
		types = append(types, ev.EventType())
	}
	return types
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

func newTestEngine(t *testing.T, store record.Store) (*Engine, *timeutil.FixedClock, *captureBus) {
	t.Helper()

	clock := timeutil.NewFixedClock(day0)
	bus := &captureBus{}

	e, err := New(Config{
		LearnerID: "learner-1",
		Store:     store,
		Bus:       bus,
		Clock:     clock,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))

	return e, clock, bus
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestEngine_NotInitialized(t *testing.T) {
	e, err := New(Config{Store: record.NewMemoryStore(), Logger: quietLogger()})
	require.NoError(t, err)

	_, err = e.RecordProblemCompletion(context.Background(), "bonds", "p1", true)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = e.RecordStudySession(context.Background(), 600)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = e.UpdateCompanionSettings(context.Background(), companion.Updates{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestEngine_InitializeDefaults(t *testing.T) {
	e, _, _ := newTestEngine(t, record.NewMemoryStore())

	snap := e.ProgressSnapshot()
	assert.Zero(t, snap.TotalProblems)
	assert.Zero(t, snap.StudyStreak)
	assert.Zero(t, snap.OverallAccuracy)
	assert.True(t, snap.LastActivity.IsZero())
	assert.Empty(t, snap.Topics)
	assert.Equal(t, progress.DefaultWeeklyGoalSeconds, snap.Analytics.WeeklyGoal)

	assert.Equal(t, companion.DefaultSettings(), e.Settings())
}

func TestEngine_WriteThroughAndReload(t *testing.T) {
	store := record.NewMemoryStore()
	ctx := context.Background()

	e, _, _ := newTestEngine(t, store)
	_, err := e.RecordProblemCompletion(ctx, "bonds", "b-1", true)
	require.NoError(t, err)
	_, err = e.RecordProblemCompletion(ctx, "bonds", "b-2", false)
	require.NoError(t, err)
	_, err = e.RecordStudySession(ctx, 600)
	require.NoError(t, err)
	want := e.ProgressSnapshot()

	// A fresh engine over the same store sees identical state, and loading
	// twice with no events in between changes nothing.
	for i := 0; i < 2; i++ {
		reloaded, _, _ := newTestEngine(t, store)
		got := reloaded.ProgressSnapshot()

		assert.Equal(t, want.TotalProblems, got.TotalProblems)
		assert.Equal(t, want.StudyStreak, got.StudyStreak)
		assert.InDelta(t, want.OverallAccuracy, got.OverallAccuracy, 1e-9)
		assert.Equal(t, want.Analytics, got.Analytics)
		require.Contains(t, got.Topics, "bonds")
		assert.Equal(t, want.Topics["bonds"], got.Topics["bonds"])
		assert.True(t, want.LastActivity.Equal(got.LastActivity))
	}
}

func TestEngine_CorruptProgressRecordYieldsDefaults(t *testing.T) {
	store := record.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, record.ScopedKey("learner-1", record.KeyProgress), []byte("{not json")))

	e, _, _ := newTestEngine(t, store)

	snap := e.ProgressSnapshot()
	assert.Zero(t, snap.TotalProblems)
	assert.Equal(t, progress.DefaultWeeklyGoalSeconds, snap.Analytics.WeeklyGoal)
}

func TestEngine_UnknownSchemaVersionYieldsDefaults(t *testing.T) {
	store := record.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, record.ScopedKey("learner-1", record.KeyProgress),
		[]byte(`{"version":99,"totalProblems":40}`)))

	e, _, _ := newTestEngine(t, store)
	assert.Zero(t, e.ProgressSnapshot().TotalProblems)
}

func TestEngine_LegacyRecordMigration(t *testing.T) {
	store := record.NewMemoryStore()
	ctx := context.Background()

	// A record written before the version tag: no version field, no
	// longestStreak, zero weeklyGoal.
	legacy := `{
		"totalProblems": 7,
		"studyStreak": 4,
		"overallAccuracy": 0.5,
		"lastActivity": "2025-03-09T20:00:00Z",
		"topicsProgress": {"bonds": {"completed": ["b-1"], "accuracy": 0.5, "attempts": 2}},
		"analytics": {"dailyStudyTime": 1200, "weeklyGoal": 0, "streak": 4, "totalStudyDays": 6}
	}`
	require.NoError(t, store.Set(ctx, record.ScopedKey("learner-1", record.KeyProgress), []byte(legacy)))

	e, _, _ := newTestEngine(t, store)
	snap := e.ProgressSnapshot()

	assert.Equal(t, 7, snap.TotalProblems)
	assert.Equal(t, 4, snap.StudyStreak)
	assert.Equal(t, progress.DefaultWeeklyGoalSeconds, snap.Analytics.WeeklyGoal)
	assert.Equal(t, 4, snap.Analytics.LongestStreak)
	assert.Equal(t, 1200, snap.Analytics.DailyStudyTime)
}

func TestEngine_CorruptSettingsRecordYieldsDefaults(t *testing.T) {
	store := record.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, record.ScopedKey("learner-1", record.KeyCompanionSettings), []byte("???")))

	e, _, _ := newTestEngine(t, store)
	assert.Equal(t, companion.DefaultSettings(), e.Settings())
}

func TestEngine_SettingsRoundTrip(t *testing.T) {
	store := record.NewMemoryStore()
	ctx := context.Background()

	e, _, _ := newTestEngine(t, store)
	freq := companion.FrequencyFrequent
	name := "Alex"
	updated, err := e.UpdateCompanionSettings(ctx, companion.Updates{
		Frequency:        &freq,
		PersonalizedName: &name,
	})
	require.NoError(t, err)
	assert.Equal(t, companion.FrequencyFrequent, updated.Frequency)

	reloaded, _, _ := newTestEngine(t, store)
	assert.Equal(t, updated, reloaded.Settings())
}

func TestEngine_UpdateSettingsRejectsInvalidEnum(t *testing.T) {
	e, _, bus := newTestEngine(t, record.NewMemoryStore())

	bad := companion.Frequency("constant")
	_, err := e.UpdateCompanionSettings(context.Background(), companion.Updates{Frequency: &bad})
	assert.ErrorIs(t, err, companion.ErrInvalidFrequency)
	assert.True(t, shared.IsInvalidArgument(err))

	assert.Equal(t, companion.DefaultSettings(), e.Settings())
	assert.Empty(t, bus.events)
}

func TestEngine_UpdateSettingsNoOpSkipsWriteAndEvents(t *testing.T) {
	e, _, bus := newTestEngine(t, record.NewMemoryStore())

	freq := companion.FrequencyModerate // already the default
	got, err := e.UpdateCompanionSettings(context.Background(), companion.Updates{Frequency: &freq})
	require.NoError(t, err)
	assert.Equal(t, companion.DefaultSettings(), got)
	assert.Empty(t, bus.events)
}

func TestEngine_ValidationLeavesEverythingUntouched(t *testing.T) {
	store := record.NewMemoryStore()
	e, _, bus := newTestEngine(t, store)
	ctx := context.Background()

	_, err := e.RecordProblemCompletion(ctx, "  ", "p1", true)
	assert.ErrorIs(t, err, progress.ErrEmptyTopic)
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = e.RecordProblemCompletion(ctx, "bonds", "", true)
	assert.ErrorIs(t, err, progress.ErrEmptyProblemID)

	_, err = e.RecordStudySession(ctx, -1)
	assert.ErrorIs(t, err, progress.ErrNegativeDuration)
	assert.True(t, shared.IsInvalidArgument(err))

	assert.Zero(t, e.ProgressSnapshot().TotalProblems)
	assert.Empty(t, bus.events)

	_, err = store.Get(ctx, record.ScopedKey("learner-1", record.KeyProgress))
	assert.ErrorIs(t, err, shared.ErrRecordAbsent)
}

func TestEngine_WriteFailureStillReturnsUpdatedSnapshot(t *testing.T) {
	store := record.NewMemoryStore()
	e, _, bus := newTestEngine(t, store)
	ctx := context.Background()

	store.FailWrites(assert.AnError)

	snap, err := e.RecordProblemCompletion(ctx, "bonds", "b-1", true)
	assert.ErrorIs(t, err, shared.ErrStorageWrite)
	assert.True(t, shared.IsStorageWrite(err))

	// In-memory state is authoritative for the session.
	assert.Equal(t, 1, snap.TotalProblems)
	assert.Equal(t, 1, snap.StudyStreak)

	// Subscribers still hear about the applied event.
	assert.Contains(t, bus.typesSeen(), shared.EventProblemCompleted)

	// The store never saw the record.
	_, getErr := store.Get(ctx, record.ScopedKey("learner-1", record.KeyProgress))
	assert.ErrorIs(t, getErr, shared.ErrRecordAbsent)
}

func TestEngine_CompletionEvents(t *testing.T) {
	e, _, bus := newTestEngine(t, record.NewMemoryStore())

	_, err := e.RecordProblemCompletion(context.Background(), "bonds", "b-1", true)
	require.NoError(t, err)

	require.Equal(t, []shared.EventType{shared.EventProblemCompleted, shared.EventStreakUpdated}, bus.typesSeen())

	completed, ok := bus.events[0].(shared.ProblemCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "learner-1", completed.AggregateID())
	assert.Equal(t, "bonds", completed.Topic)
	assert.Equal(t, "b-1", completed.ProblemID)
	assert.True(t, completed.IsCorrect)
	assert.True(t, completed.FirstCompletion)
	assert.Equal(t, 1.0, completed.TopicAccuracy)
	assert.Equal(t, 1, completed.TotalProblems)
	assert.NotEmpty(t, completed.CorrelationID)

	streak, ok := bus.events[1].(shared.StreakUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, 1, streak.Streak)
	assert.Equal(t, completed.CorrelationID, streak.CorrelationID)
}

func TestEngine_SameDayActivityPublishesNoStreakEvent(t *testing.T) {
	e, _, bus := newTestEngine(t, record.NewMemoryStore())
	ctx := context.Background()

	_, err := e.RecordStudySession(ctx, 300)
	require.NoError(t, err)
	bus.events = nil

	_, err = e.RecordStudySession(ctx, 300)
	require.NoError(t, err)

	assert.Equal(t, []shared.EventType{shared.EventSessionRecorded}, bus.typesSeen())
}

func TestEngine_StreakBreakEvents(t *testing.T) {
	e, clock, bus := newTestEngine(t, record.NewMemoryStore())
	ctx := context.Background()

	_, err := e.RecordStudySession(ctx, 300)
	require.NoError(t, err)
	clock.AdvanceDays(1)
	_, err = e.RecordStudySession(ctx, 300)
	require.NoError(t, err)

	// Three days of silence break the 2-day streak.
	clock.AdvanceDays(3)
	bus.events = nil
	snap, err := e.RecordStudySession(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.StudyStreak)

	require.Equal(t, []shared.EventType{
		shared.EventSessionRecorded,
		shared.EventStreakBroken,
		shared.EventStreakUpdated,
	}, bus.typesSeen())

	broken, ok := bus.events[1].(shared.StreakBrokenEvent)
	require.True(t, ok)
	assert.Equal(t, 2, broken.PreviousStreak)
	assert.Equal(t, 2, broken.DaysMissed)

	updated, ok := bus.events[2].(shared.StreakUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, 1, updated.Streak)
	assert.Equal(t, 2, updated.LongestStreak)
}

func TestEngine_StreakMilestoneEvents(t *testing.T) {
	e, clock, bus := newTestEngine(t, record.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := e.RecordStudySession(ctx, 300)
		require.NoError(t, err)
		clock.AdvanceDays(1)
	}
	bus.events = nil

	// The third consecutive day hits the default streak step.
	_, err := e.RecordStudySession(ctx, 300)
	require.NoError(t, err)

	require.Equal(t, []shared.EventType{
		shared.EventSessionRecorded,
		shared.EventStreakUpdated,
		shared.EventMilestoneReached,
	}, bus.typesSeen())

	milestone, ok := bus.events[2].(shared.MilestoneReachedEvent)
	require.True(t, ok)
	assert.Equal(t, "streak", milestone.MilestoneType)
	assert.Equal(t, 3, milestone.Value)
}

func TestEngine_ProblemCountMilestoneEvents(t *testing.T) {
	bus := &captureBus{}
	e, err := New(Config{
		LearnerID:            "learner-1",
		Store:                record.NewMemoryStore(),
		Bus:                  bus,
		Clock:                timeutil.NewFixedClock(day0),
		Logger:               quietLogger(),
		MilestoneProblemStep: 2,
	})
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	ctx := context.Background()

	_, err = e.RecordProblemCompletion(ctx, "bonds", "b-1", true)
	require.NoError(t, err)
	assert.NotContains(t, bus.typesSeen(), shared.EventMilestoneReached)

	_, err = e.RecordProblemCompletion(ctx, "bonds", "b-2", false)
	require.NoError(t, err)

	last := bus.events[len(bus.events)-1]
	milestone, ok := last.(shared.MilestoneReachedEvent)
	require.True(t, ok)
	assert.Equal(t, "problems", milestone.MilestoneType)
	assert.Equal(t, 2, milestone.Value)
}

func TestEngine_MilestonesDisabled(t *testing.T) {
	bus := &captureBus{}
	clock := timeutil.NewFixedClock(day0)
	e, err := New(Config{
		LearnerID:            "learner-1",
		Store:                record.NewMemoryStore(),
		Bus:                  bus,
		Clock:                clock,
		Logger:               quietLogger(),
		MilestoneStreakStep:  -1,
		MilestoneProblemStep: -1,
	})
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err = e.RecordProblemCompletion(ctx, "bonds", fmt.Sprintf("b-%d", i), true)
		require.NoError(t, err)
		clock.AdvanceDays(1)
	}

	assert.NotContains(t, bus.typesSeen(), shared.EventMilestoneReached)
}

func TestEngine_StaleWriteDetectedAcrossEngines(t *testing.T) {
	store := record.NewMemoryStore()
	ctx := context.Background()

	a, _, _ := newTestEngine(t, store)
	b, _, _ := newTestEngine(t, store)

	_, err := a.RecordProblemCompletion(ctx, "bonds", "b-1", true)
	require.NoError(t, err)

	// b loaded before a's write and now holds a stale stamp.
	snap, err := b.RecordProblemCompletion(ctx, "bonds", "b-2", true)
	assert.ErrorIs(t, err, shared.ErrStaleWrite)
	assert.True(t, shared.IsStorageWrite(err))
	assert.Equal(t, 1, snap.TotalProblems)
}

func TestEngine_AnalyticsSnapshot(t *testing.T) {
	e, clock, _ := newTestEngine(t, record.NewMemoryStore())
	ctx := context.Background()

	_, err := e.RecordStudySession(ctx, 9000)
	require.NoError(t, err)
	clock.AdvanceDays(1)
	_, err = e.RecordProblemCompletion(ctx, "bonds", "b-1", true)
	require.NoError(t, err)

	view := e.AnalyticsSnapshot()
	assert.Equal(t, 1, view.TotalProblems)
	assert.Equal(t, 2, view.StudyStreak)
	assert.Equal(t, 9000, view.DailyStudyTime)
	assert.Equal(t, 2, view.TotalStudyDays)
	assert.Equal(t, 1, view.TopicsTracked)
	assert.InDelta(t, 0.5, view.WeeklyGoalProgress(), 1e-9)
}

func TestEngine_SnapshotIsolation(t *testing.T) {
	e, _, _ := newTestEngine(t, record.NewMemoryStore())
	ctx := context.Background()

	_, err := e.RecordProblemCompletion(ctx, "bonds", "b-1", true)
	require.NoError(t, err)

	snap := e.ProgressSnapshot()
	snap.Topics["bonds"] = progress.TopicSnapshot{Accuracy: 0.1}
	snap.TotalProblems = 99

	fresh := e.ProgressSnapshot()
	assert.Equal(t, 1, fresh.TotalProblems)
	assert.Equal(t, 1.0, fresh.Topics["bonds"].Accuracy)
}
