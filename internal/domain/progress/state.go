// Package progress contains the domain model for learner progress: per-topic
// accuracy aggregates, the study-day streak, and cumulative study-time
// analytics. All update algorithms are pure functions of old state + event +
// timestamp. This is a pure domain layer with zero external dependencies.
package progress

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/nikhillinit/ACFStudy-sub002/pkg/timeutil"
)

// Domain errors for the progress package.
var (
	ErrEmptyTopic       = errors.New("progress: topic cannot be empty")
	ErrEmptyProblemID   = errors.New("progress: problem ID cannot be empty")
	ErrNegativeDuration = errors.New("progress: duration cannot be negative")
)

// DefaultWeeklyGoalSeconds is the default weekly study goal (5 hours).
const DefaultWeeklyGoalSeconds = 18000

// ══════════════════════════════════════════════════════════════════════════════
// TOPIC PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// TopicProgress tracks mastery of one curriculum topic (e.g., "bonds",
// "time-value-of-money").
//
// Invariants: Accuracy stays in [0,1] because it is a running mean of 0/1
// outcomes; CompletedCount() <= Attempts because the completed set is
// idempotent on repeats while the attempt counter is not.
type TopicProgress struct {
	// completed holds the distinct problem IDs ever completed for this
	// topic. A problem counts once toward topic mastery regardless of
	// repeat attempts, so membership is what matters, not order.
	completed map[string]struct{}

	// Accuracy is the running mean correctness over all attempts at this
	// topic, including repeats of already-completed problems.
	Accuracy float64

	// Attempts counts completion events for this topic. Monotonically
	// increasing, one increment per event regardless of repeat.
	Attempts int
}

// NewTopicProgress creates an empty topic aggregate.
func NewTopicProgress() *TopicProgress {
	return &TopicProgress{
		completed: make(map[string]struct{}),
	}
}

// RestoreTopicProgress rebuilds a topic aggregate from persisted values.
// Duplicate IDs in completed collapse; accuracy is clamped back into [0,1]
// so a hand-edited or drifted record cannot violate the invariant.
func RestoreTopicProgress(completed []string, accuracy float64, attempts int) *TopicProgress {
	tp := NewTopicProgress()
	for _, id := range completed {
		if id != "" {
			tp.completed[id] = struct{}{}
		}
	}
	if attempts < 0 {
		attempts = 0
	}
	tp.Attempts = attempts
	tp.Accuracy = clamp01(accuracy)

	// completed.size <= attempts must hold even for restored records.
	if len(tp.completed) > tp.Attempts {
		tp.Attempts = len(tp.completed)
	}
	return tp
}

// recordAttempt applies one completion event to the topic. Returns true if
// this was the first completion of problemID for this topic.
func (tp *TopicProgress) recordAttempt(problemID string, isCorrect bool) bool {
	_, seen := tp.completed[problemID]
	if !seen {
		tp.completed[problemID] = struct{}{}
	}

	// Incremental mean over all historical 0/1 outcomes. The divisor must
	// be the attempts count after increment and the prior weight must be
	// attempts-1, or the running mean drifts from the true mean.
	tp.Attempts++
	outcome := 0.0
	if isCorrect {
		outcome = 1.0
	}
	tp.Accuracy = (tp.Accuracy*float64(tp.Attempts-1) + outcome) / float64(tp.Attempts)

	return !seen
}

// HasCompleted reports whether the problem was ever completed for this topic.
func (tp *TopicProgress) HasCompleted(problemID string) bool {
	_, ok := tp.completed[problemID]
	return ok
}

// CompletedCount returns the number of distinct completed problems.
func (tp *TopicProgress) CompletedCount() int {
	return len(tp.completed)
}

// Completed returns the distinct completed problem IDs, sorted for stable
// serialization and display.
func (tp *TopicProgress) Completed() []string {
	ids := make([]string, 0, len(tp.completed))
	for id := range tp.completed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYTICS
// ══════════════════════════════════════════════════════════════════════════════

// Analytics holds the cumulative study-time counters that drive the
// recommendation and goal features.
type Analytics struct {
	// DailyStudyTime is cumulative recorded study time in seconds.
	DailyStudyTime int

	// WeeklyGoal is the study goal in seconds (default 18000 = 5h).
	WeeklyGoal int

	// Streak mirrors State.StudyStreak.
	Streak int

	// TotalStudyDays counts distinct calendar days with recorded activity.
	TotalStudyDays int

	// LongestStreak is the best streak ever reached.
	LongestStreak int
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STATE
// ══════════════════════════════════════════════════════════════════════════════

// State is the aggregate root for one learner's progress. The engine owns
// the single instance; callers only ever see snapshots.
type State struct {
	// TotalProblems counts completion events (repeats count).
	TotalProblems int

	// StudyStreak is the count of consecutive calendar days with recorded
	// study activity.
	StudyStreak int

	// OverallAccuracy is the unweighted mean of Accuracy across all topics
	// present in Topics. A topic with zero attempts is never present, so
	// there is no division-by-zero case.
	OverallAccuracy float64

	// LastActivity is the timestamp of the most recent mutation.
	LastActivity time.Time

	// Topics maps topic key to its aggregate. Keys are created lazily on
	// the first event for a topic and never removed.
	Topics map[string]*TopicProgress

	// Analytics holds the study-time counters.
	Analytics Analytics
}

// NewState creates the documented default progress state.
func NewState() *State {
	return &State{
		Topics: make(map[string]*TopicProgress),
		Analytics: Analytics{
			WeeklyGoal: DefaultWeeklyGoalSeconds,
		},
	}
}

// StreakChange describes what happened to the streak during an update.
type StreakChange struct {
	// Advanced is true when the streak grew (including the first-ever day).
	Advanced bool

	// Broken is true when a gap of two or more days reset the streak to 1.
	Broken bool

	// Previous is the streak value before a break (meaningful when Broken).
	Previous int

	// DaysMissed is the number of whole days without activity before a
	// break (meaningful when Broken).
	DaysMissed int
}

// CompletionResult summarizes one applied completion event.
type CompletionResult struct {
	// FirstCompletion is true if the problem had never been completed for
	// this topic before.
	FirstCompletion bool

	// TopicAccuracy is the topic's accuracy after the update.
	TopicAccuracy float64

	// Streak describes the streak transition caused by this event.
	Streak StreakChange
}

// SessionResult summarizes one applied study session.
type SessionResult struct {
	// Streak describes the streak transition caused by this session.
	Streak StreakChange
}

// ApplyCompletion applies one problem-completion event. Validation failures
// leave the state untouched.
func (s *State) ApplyCompletion(topic, problemID string, isCorrect bool, now time.Time) (CompletionResult, error) {
	if strings.TrimSpace(topic) == "" {
		return CompletionResult{}, ErrEmptyTopic
	}
	if strings.TrimSpace(problemID) == "" {
		return CompletionResult{}, ErrEmptyProblemID
	}

	tp, ok := s.Topics[topic]
	if !ok {
		tp = NewTopicProgress()
		s.Topics[topic] = tp
	}

	first := tp.recordAttempt(problemID, isCorrect)
	s.RecalculateOverallAccuracy()
	s.TotalProblems++

	change := s.touchDay(now)
	s.LastActivity = now

	return CompletionResult{
		FirstCompletion: first,
		TopicAccuracy:   tp.Accuracy,
		Streak:          change,
	}, nil
}

// ApplySession applies one study session of the given duration in seconds.
// Validation failures leave the state untouched.
func (s *State) ApplySession(durationSeconds int, now time.Time) (SessionResult, error) {
	if durationSeconds < 0 {
		return SessionResult{}, ErrNegativeDuration
	}

	change := s.touchDay(now)
	s.Analytics.DailyStudyTime += durationSeconds
	s.LastActivity = now

	return SessionResult{Streak: change}, nil
}

// RecalculateOverallAccuracy recomputes the unweighted arithmetic mean of
// per-topic accuracy over exactly the topics with at least one attempt.
//
// Unweighted is a compatibility choice: a topic with 2 attempts counts the
// same as one with 200. The attempt-weighted mean is the candidate fix if
// that ever changes, but it would shift every persisted overallAccuracy.
func (s *State) RecalculateOverallAccuracy() {
	if len(s.Topics) == 0 {
		s.OverallAccuracy = 0
		return
	}

	var sum float64
	for _, tp := range s.Topics {
		sum += tp.Accuracy
	}
	s.OverallAccuracy = sum / float64(len(s.Topics))
}

// touchDay advances the streak state machine for an activity at now.
//
// States are {no-activity, active-streak(n)}; transitions depend only on the
// calendar-day distance between LastActivity and now:
//
//	no prior activity  -> streak 1
//	same day           -> unchanged (but never left at 0 when activity exists)
//	exactly yesterday  -> streak+1
//	gap of 2+ days     -> reset to 1
//
// Analytics.Streak, Analytics.LongestStreak and Analytics.TotalStudyDays are
// kept in step here so the two views never diverge.
func (s *State) touchDay(now time.Time) StreakChange {
	var change StreakChange

	switch {
	case s.LastActivity.IsZero():
		// First-ever recorded activity. The streak starts at 1 on the
		// first day activity occurs, never 0.
		s.StudyStreak = 1
		s.Analytics.TotalStudyDays++
		change.Advanced = true

	case timeutil.SameDay(s.LastActivity, now):
		// An already-running same-day streak must not be double-counted
		// or reset. The only repair is a restored legacy record that has
		// activity but a zero streak.
		if s.StudyStreak == 0 {
			s.StudyStreak = 1
			change.Advanced = true
		}

	case timeutil.IsYesterday(s.LastActivity, now):
		s.StudyStreak++
		s.Analytics.TotalStudyDays++
		change.Advanced = true

	default:
		days := timeutil.DaysBetween(s.LastActivity, now)
		change.Broken = true
		change.Previous = s.StudyStreak
		if days > 1 {
			change.DaysMissed = days - 1
		}
		s.StudyStreak = 1
		s.Analytics.TotalStudyDays++
	}

	s.Analytics.Streak = s.StudyStreak
	if s.StudyStreak > s.Analytics.LongestStreak {
		s.Analytics.LongestStreak = s.StudyStreak
	}

	return change
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
