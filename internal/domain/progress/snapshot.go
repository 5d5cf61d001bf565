package progress

import "time"

// TopicSnapshot is an immutable copy of one topic's aggregate.
type TopicSnapshot struct {
	// Completed holds the distinct completed problem IDs, sorted.
	Completed []string

	// Accuracy is the running mean correctness for the topic.
	Accuracy float64

	// Attempts is the completion-event count for the topic.
	Attempts int
}

// Snapshot is an immutable copy of the full progress state returned to
// callers. Mutating a snapshot never affects the engine's state.
type Snapshot struct {
	TotalProblems   int
	StudyStreak     int
	OverallAccuracy float64
	LastActivity    time.Time
	Topics          map[string]TopicSnapshot
	Analytics       Analytics
}

// Snapshot returns a deep copy of the state.
func (s *State) Snapshot() Snapshot {
	topics := make(map[string]TopicSnapshot, len(s.Topics))
	for key, tp := range s.Topics {
		topics[key] = TopicSnapshot{
			Completed: tp.Completed(),
			Accuracy:  tp.Accuracy,
			Attempts:  tp.Attempts,
		}
	}

	return Snapshot{
		TotalProblems:   s.TotalProblems,
		StudyStreak:     s.StudyStreak,
		OverallAccuracy: s.OverallAccuracy,
		LastActivity:    s.LastActivity,
		Topics:          topics,
		Analytics:       s.Analytics,
	}
}

// AnalyticsView is the read-only merge of the state's top-level counters
// with the analytics block. Pure; building one neither mutates nor persists.
type AnalyticsView struct {
	TotalProblems   int
	StudyStreak     int
	OverallAccuracy float64
	LastActivity    time.Time
	TopicsTracked   int
	DailyStudyTime  int
	WeeklyGoal      int
	TotalStudyDays  int
	LongestStreak   int
}

// AnalyticsView builds the merged read-only view.
func (s *State) AnalyticsView() AnalyticsView {
	return AnalyticsView{
		TotalProblems:   s.TotalProblems,
		StudyStreak:     s.StudyStreak,
		OverallAccuracy: s.OverallAccuracy,
		LastActivity:    s.LastActivity,
		TopicsTracked:   len(s.Topics),
		DailyStudyTime:  s.Analytics.DailyStudyTime,
		WeeklyGoal:      s.Analytics.WeeklyGoal,
		TotalStudyDays:  s.Analytics.TotalStudyDays,
		LongestStreak:   s.Analytics.LongestStreak,
	}
}

// WeeklyGoalProgress returns study time as a fraction of the weekly goal,
// clamped to [0,1]. A non-positive goal reports 0 rather than dividing.
func (v AnalyticsView) WeeklyGoalProgress() float64 {
	if v.WeeklyGoal <= 0 {
		return 0
	}
	return clamp01(float64(v.DailyStudyTime) / float64(v.WeeklyGoal))
}
