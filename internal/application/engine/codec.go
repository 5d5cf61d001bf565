package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/companion"
	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/progress"
	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/shared"
)

// schemaVersion tags every record written by this engine. Version 0 marks a
// legacy record written before the tag existed; those are migrated on read.
// An unknown higher version is treated as corrupt rather than guessed at,
// so a downgraded binary cannot silently mangle a newer record.
const schemaVersion = 1

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS RECORD
// ══════════════════════════════════════════════════════════════════════════════

// topicRecord is the wire form of one topic aggregate.
type topicRecord struct {
	Completed []string `json:"completed"`
	Accuracy  float64  `json:"accuracy"`
	Attempts  int      `json:"attempts"`
}

// analyticsRecord is the wire form of the analytics block.
type analyticsRecord struct {
	DailyStudyTime int `json:"dailyStudyTime"`
	WeeklyGoal     int `json:"weeklyGoal"`
	Streak         int `json:"streak"`
	TotalStudyDays int `json:"totalStudyDays"`
	LongestStreak  int `json:"longestStreak,omitempty"`
}

// progressRecord is the wire form of the full progress state.
type progressRecord struct {
	Version         int                    `json:"version"`
	TotalProblems   int                    `json:"totalProblems"`
	StudyStreak     int                    `json:"studyStreak"`
	OverallAccuracy float64                `json:"overallAccuracy"`
	LastActivity    time.Time              `json:"lastActivity"`
	TopicsProgress  map[string]topicRecord `json:"topicsProgress"`
	Analytics       analyticsRecord        `json:"analytics"`
}

// encodeProgress serializes the state at the current schema version.
func encodeProgress(s *progress.State) ([]byte, error) {
	rec := progressRecord{
		Version:         schemaVersion,
		TotalProblems:   s.TotalProblems,
		StudyStreak:     s.StudyStreak,
		OverallAccuracy: s.OverallAccuracy,
		LastActivity:    s.LastActivity,
		TopicsProgress:  make(map[string]topicRecord, len(s.Topics)),
		Analytics: analyticsRecord{
			DailyStudyTime: s.Analytics.DailyStudyTime,
			WeeklyGoal:     s.Analytics.WeeklyGoal,
			Streak:         s.Analytics.Streak,
			TotalStudyDays: s.Analytics.TotalStudyDays,
			LongestStreak:  s.Analytics.LongestStreak,
		},
	}
	for key, tp := range s.Topics {
		rec.TopicsProgress[key] = topicRecord{
			Completed: tp.Completed(),
			Accuracy:  tp.Accuracy,
			Attempts:  tp.Attempts,
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, shared.WrapError("engine", "encodeProgress", shared.ErrStorageWrite, "serialize progress record", err)
	}
	return data, nil
}

// decodeProgress rebuilds progress state from a stored record. Any parse or
// version failure comes back as a corrupt-record error; the caller recovers
// with defaults.
func decodeProgress(data []byte) (*progress.State, error) {
	var rec progressRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, shared.WrapError("engine", "decodeProgress", shared.ErrStorageCorrupt, "parse progress record", err)
	}
	if rec.Version > schemaVersion {
		return nil, shared.NewDomainError("engine", "decodeProgress", shared.ErrUnknownSchemaVer,
			fmt.Sprintf("progress record version %d, newest known %d", rec.Version, schemaVersion))
	}

	s := progress.NewState()
	s.TotalProblems = maxInt(rec.TotalProblems, 0)
	s.StudyStreak = maxInt(rec.StudyStreak, 0)
	s.OverallAccuracy = rec.OverallAccuracy
	s.LastActivity = rec.LastActivity
	for key, tr := range rec.TopicsProgress {
		if key == "" {
			continue
		}
		s.Topics[key] = progress.RestoreTopicProgress(tr.Completed, tr.Accuracy, tr.Attempts)
	}

	s.Analytics.DailyStudyTime = maxInt(rec.Analytics.DailyStudyTime, 0)
	s.Analytics.WeeklyGoal = rec.Analytics.WeeklyGoal
	s.Analytics.TotalStudyDays = maxInt(rec.Analytics.TotalStudyDays, 0)
	s.Analytics.LongestStreak = rec.Analytics.LongestStreak

	// Version-0 records predate the weeklyGoal default being guaranteed and
	// the longestStreak field entirely.
	if s.Analytics.WeeklyGoal <= 0 {
		s.Analytics.WeeklyGoal = progress.DefaultWeeklyGoalSeconds
	}

	// The streak mirror and derived fields are recomputed from the canonical
	// top-level streak so the two views cannot load diverged.
	s.Analytics.Streak = s.StudyStreak
	if s.Analytics.LongestStreak < s.StudyStreak {
		s.Analytics.LongestStreak = s.StudyStreak
	}

	// OverallAccuracy is derived; recompute instead of trusting the record.
	s.RecalculateOverallAccuracy()

	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPANION SETTINGS RECORD
// ══════════════════════════════════════════════════════════════════════════════

// settingsRecord is the wire form of companion settings.
type settingsRecord struct {
	Version            int    `json:"version"`
	Frequency          string `json:"frequency"`
	EncouragementStyle string `json:"encouragementStyle"`
	ShowCelebrations   bool   `json:"showCelebrations"`
	ShowTips           bool   `json:"showTips"`
	ShowProgress       bool   `json:"showProgress"`
	PersonalizedName   string `json:"personalizedName"`
}

// encodeSettings serializes companion settings at the current schema version.
func encodeSettings(s companion.Settings) ([]byte, error) {
	rec := settingsRecord{
		Version:            schemaVersion,
		Frequency:          string(s.Frequency),
		EncouragementStyle: string(s.EncouragementStyle),
		ShowCelebrations:   s.ShowCelebrations,
		ShowTips:           s.ShowTips,
		ShowProgress:       s.ShowProgress,
		PersonalizedName:   s.PersonalizedName,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, shared.WrapError("engine", "encodeSettings", shared.ErrStorageWrite, "serialize settings record", err)
	}
	return data, nil
}

// decodeSettings rebuilds companion settings from a stored record. Unknown
// enum values degrade per field via Sanitize rather than discarding the
// whole record.
func decodeSettings(data []byte) (companion.Settings, error) {
	var rec settingsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return companion.Settings{}, shared.WrapError("engine", "decodeSettings", shared.ErrStorageCorrupt, "parse settings record", err)
	}
	if rec.Version > schemaVersion {
		return companion.Settings{}, shared.NewDomainError("engine", "decodeSettings", shared.ErrUnknownSchemaVer,
			fmt.Sprintf("settings record version %d, newest known %d", rec.Version, schemaVersion))
	}

	s := companion.Settings{
		Frequency:          companion.Frequency(rec.Frequency),
		EncouragementStyle: companion.EncouragementStyle(rec.EncouragementStyle),
		ShowCelebrations:   rec.ShowCelebrations,
		ShowTips:           rec.ShowTips,
		ShowProgress:       rec.ShowProgress,
		PersonalizedName:   rec.PersonalizedName,
	}
	return s.Sanitize(), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
