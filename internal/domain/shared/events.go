// Package shared contains common domain types, errors, and events used
// across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents a fact the engine reports to
// its collaborators (UI, gamification layer); celebration policy stays on
// the subscriber side.
const (
	// Progress events
	EventProblemCompleted EventType = "progress.problem_completed"
	EventSessionRecorded  EventType = "progress.session_recorded"
	EventStreakUpdated    EventType = "progress.streak_updated"
	EventStreakBroken     EventType = "progress.streak_broken"

	// Companion settings events
	EventSettingsUpdated EventType = "companion.settings_updated"

	// Milestone facts toward the presentation layer: streak multiples of a
	// configured step and round problem totals. Level computation stays
	// outside the core.
	EventMilestoneReached EventType = "gamification.milestone_reached"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, occurredAt time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   occurredAt,
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ProblemCompletedEvent is emitted after a completion event has been applied
// to the progress state. Subscribers use it to drive celebrations
// (streak multiples, fast answers, high accuracy are subscriber policy).
type ProblemCompletedEvent struct {
	BaseEvent
	Topic           string  `json:"topic"`
	ProblemID       string  `json:"problem_id"`
	IsCorrect       bool    `json:"is_correct"`
	FirstCompletion bool    `json:"first_completion"`
	TopicAccuracy   float64 `json:"topic_accuracy"`
	OverallAccuracy float64 `json:"overall_accuracy"`
	TotalProblems   int     `json:"total_problems"`
	TimeSpent       int     `json:"time_spent,omitempty"` // seconds, 0 if not reported
}

// NewProblemCompletedEvent creates a new ProblemCompletedEvent.
func NewProblemCompletedEvent(learnerID, topic, problemID string, isCorrect bool, occurredAt time.Time) ProblemCompletedEvent {
	return ProblemCompletedEvent{
		BaseEvent: NewBaseEvent(EventProblemCompleted, learnerID, occurredAt),
		Topic:     topic,
		ProblemID: problemID,
		IsCorrect: isCorrect,
	}
}

// SessionRecordedEvent is emitted after a study session has been applied.
type SessionRecordedEvent struct {
	BaseEvent
	DurationSeconds int `json:"duration_seconds"`
	DailyStudyTime  int `json:"daily_study_time"`
	StudyStreak     int `json:"study_streak"`
}

// NewSessionRecordedEvent creates a new SessionRecordedEvent.
func NewSessionRecordedEvent(learnerID string, durationSeconds int, occurredAt time.Time) SessionRecordedEvent {
	return SessionRecordedEvent{
		BaseEvent:       NewBaseEvent(EventSessionRecorded, learnerID, occurredAt),
		DurationSeconds: durationSeconds,
	}
}

// StreakUpdatedEvent is emitted when the study-day streak advances.
type StreakUpdatedEvent struct {
	BaseEvent
	Streak        int `json:"streak"`
	LongestStreak int `json:"longest_streak"`
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(learnerID string, streak, longest int, occurredAt time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventStreakUpdated, learnerID, occurredAt),
		Streak:        streak,
		LongestStreak: longest,
	}
}

// StreakBrokenEvent is emitted when a gap of two or more days resets the
// streak back to one.
type StreakBrokenEvent struct {
	BaseEvent
	PreviousStreak int `json:"previous_streak"`
	DaysMissed     int `json:"days_missed"`
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(learnerID string, previousStreak, daysMissed int, occurredAt time.Time) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, learnerID, occurredAt),
		PreviousStreak: previousStreak,
		DaysMissed:     daysMissed,
	}
}

// SettingsUpdatedEvent is emitted after companion settings changed.
type SettingsUpdatedEvent struct {
	BaseEvent
	ChangedFields []string `json:"changed_fields"`
}

// NewSettingsUpdatedEvent creates a new SettingsUpdatedEvent.
func NewSettingsUpdatedEvent(learnerID string, changed []string, occurredAt time.Time) SettingsUpdatedEvent {
	return SettingsUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventSettingsUpdated, learnerID, occurredAt),
		ChangedFields: changed,
	}
}

// MilestoneReachedEvent reports a milestone fact: the streak hit a multiple
// of the configured step, or the problem total hit a round number. Pure
// notification; whether and how to celebrate is subscriber policy.
type MilestoneReachedEvent struct {
	BaseEvent
	MilestoneType string `json:"milestone_type"` // e.g., "streak", "problems"
	Value         int    `json:"value"`
}

// NewMilestoneReachedEvent creates a new MilestoneReachedEvent.
func NewMilestoneReachedEvent(learnerID, milestoneType string, value int, occurredAt time.Time) MilestoneReachedEvent {
	return MilestoneReachedEvent{
		BaseEvent:     NewBaseEvent(EventMilestoneReached, learnerID, occurredAt),
		MilestoneType: milestoneType,
		Value:         value,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
