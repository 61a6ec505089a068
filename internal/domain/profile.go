package domain

import "time"

// Frequency is how often a user wants to receive coaching messages.
type Frequency string

const (
	FrequencyDaily          Frequency = "daily"
	FrequencySeveralPerWeek Frequency = "several_per_week"
	FrequencyWeekly         Frequency = "weekly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencySeveralPerWeek, FrequencyWeekly:
		return true
	}
	return false
}

// TimePreference is the part of the day a user wants messages delivered in.
type TimePreference string

const (
	TimeMorning   TimePreference = "morning"
	TimeAfternoon TimePreference = "afternoon"
	TimeEvening   TimePreference = "evening"
)

// Valid reports whether p is one of the known time preferences.
func (p TimePreference) Valid() bool {
	switch p {
	case TimeMorning, TimeAfternoon, TimeEvening:
		return true
	}
	return false
}

// CoachingProfile holds per-user coaching settings and schedule state.
type CoachingProfile struct {
	UserID            string
	Enabled           bool
	Frequency         Frequency
	TimePreference    TimePreference
	Timezone          string     // IANA zone name
	DeviceTokens      []string   // push targets, may be empty
	LastMessageSentAt *time.Time // UTC, nil until the first send
	NextDueAt         *time.Time // UTC, nil until bootstrapped
	CreatedAt         time.Time  // UTC
	UpdatedAt         time.Time  // UTC
}

// Location resolves the profile timezone, falling back to UTC on a bad zone
// so a corrupted profile can never stall scheduling.
func (p *CoachingProfile) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
