// Package companion contains the study-companion settings model: how often
// and in what tone the companion speaks, and which progress affordances are
// displayed. Settings live independently of progress state but follow the
// same persistence discipline. This is a pure domain layer with zero
// external dependencies.
package companion

import (
	"errors"
	"fmt"
)

// Domain errors for the companion package.
var (
	ErrInvalidFrequency = errors.New("companion: invalid frequency")
	ErrInvalidStyle     = errors.New("companion: invalid encouragement style")
)

// Frequency controls how often the companion surfaces messages.
type Frequency string

const (
	FrequencyMinimal  Frequency = "minimal"
	FrequencyModerate Frequency = "moderate"
	FrequencyFrequent Frequency = "frequent"
)

// IsValid checks enum membership.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyMinimal, FrequencyModerate, FrequencyFrequent:
		return true
	}
	return false
}

// EncouragementStyle controls the companion's tone.
type EncouragementStyle string

const (
	StyleSupportive   EncouragementStyle = "supportive"
	StyleMotivational EncouragementStyle = "motivational"
	StyleAnalytical   EncouragementStyle = "analytical"
	StyleFriendly     EncouragementStyle = "friendly"
)

// IsValid checks enum membership.
func (s EncouragementStyle) IsValid() bool {
	switch s {
	case StyleSupportive, StyleMotivational, StyleAnalytical, StyleFriendly:
		return true
	}
	return false
}

// Settings is the companion settings record. Value semantics: the engine
// hands out copies, never its own instance.
type Settings struct {
	Frequency          Frequency
	EncouragementStyle EncouragementStyle
	ShowCelebrations   bool
	ShowTips           bool
	ShowProgress       bool
	PersonalizedName   string
}

// DefaultSettings returns the documented defaults used when no stored
// record exists or the stored record fails to parse.
func DefaultSettings() Settings {
	return Settings{
		Frequency:          FrequencyModerate,
		EncouragementStyle: StyleSupportive,
		ShowCelebrations:   true,
		ShowTips:           true,
		ShowProgress:       true,
		PersonalizedName:   "",
	}
}

// Sanitize replaces out-of-range enum values with defaults. Used on the
// read path so a drifted stored record degrades to defaults per field
// instead of discarding the whole record.
func (s Settings) Sanitize() Settings {
	if !s.Frequency.IsValid() {
		s.Frequency = FrequencyModerate
	}
	if !s.EncouragementStyle.IsValid() {
		s.EncouragementStyle = StyleSupportive
	}
	return s
}

// Updates contains optional settings changes. nil values mean "don't
// change"; unknown fields never reach this struct and are therefore
// ignored, not errors.
type Updates struct {
	Frequency          *Frequency
	EncouragementStyle *EncouragementStyle
	ShowCelebrations   *bool
	ShowTips           *bool
	ShowProgress       *bool
	PersonalizedName   *string
}

// Validate checks the enum fields that are present.
func (u Updates) Validate() error {
	if u.Frequency != nil && !u.Frequency.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, *u.Frequency)
	}
	if u.EncouragementStyle != nil && !u.EncouragementStyle.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStyle, *u.EncouragementStyle)
	}
	return nil
}

// Apply shallow-merges the updates over current and returns the merged
// settings plus the names of the fields that changed value.
func (u Updates) Apply(current Settings) (Settings, []string) {
	merged := current
	changed := make([]string, 0, 6)

	if u.Frequency != nil && *u.Frequency != merged.Frequency {
		merged.Frequency = *u.Frequency
		changed = append(changed, "frequency")
	}
	if u.EncouragementStyle != nil && *u.EncouragementStyle != merged.EncouragementStyle {
		merged.EncouragementStyle = *u.EncouragementStyle
		changed = append(changed, "encouragementStyle")
	}
	if u.ShowCelebrations != nil && *u.ShowCelebrations != merged.ShowCelebrations {
		merged.ShowCelebrations = *u.ShowCelebrations
		changed = append(changed, "showCelebrations")
	}
	if u.ShowTips != nil && *u.ShowTips != merged.ShowTips {
		merged.ShowTips = *u.ShowTips
		changed = append(changed, "showTips")
	}
	if u.ShowProgress != nil && *u.ShowProgress != merged.ShowProgress {
		merged.ShowProgress = *u.ShowProgress
		changed = append(changed, "showProgress")
	}
	if u.PersonalizedName != nil && *u.PersonalizedName != merged.PersonalizedName {
		merged.PersonalizedName = *u.PersonalizedName
		changed = append(changed, "personalizedName")
	}

	return merged, changed
}
