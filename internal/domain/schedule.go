package domain

import (
	"math/rand/v2"
	"time"
)

// ScheduleMode selects how the next due-time offset is computed.
type ScheduleMode string

const (
	// ModeNormal advances by the full cadence for the user's frequency.
	ModeNormal ScheduleMode = "normal"
	// ModeBootstrap assigns the first-ever due-time: a short random offset so
	// newly enrolled cohorts spread out instead of firing together.
	ModeBootstrap ScheduleMode = "bootstrap"
	// ModeRetry reschedules sooner than the normal cadence after a failed
	// attempt.
	ModeRetry ScheduleMode = "retry"
)

// Canonical local delivery hour per time preference.
const (
	MorningHour   = 8
	AfternoonHour = 14
	EveningHour   = 19
)

// CanonicalHour returns the local hour messages are anchored to for pref.
func CanonicalHour(pref TimePreference) int {
	switch pref {
	case TimeAfternoon:
		return AfternoonHour
	case TimeEvening:
		return EveningHour
	default:
		return MorningHour
	}
}

// InWindow reports whether localHour falls inside the delivery window for
// pref: morning 06-11, afternoon 12-17, evening 18-21 (inclusive bounds).
func InWindow(localHour int, pref TimePreference) bool {
	switch pref {
	case TimeAfternoon:
		return localHour >= 12 && localHour <= 17
	case TimeEvening:
		return localHour >= 18 && localHour <= 21
	default:
		return localHour >= 6 && localHour <= 11
	}
}

// normalOffset is the cadence between messages for a frequency.
func normalOffset(freq Frequency) time.Duration {
	switch freq {
	case FrequencySeveralPerWeek:
		return 48 * time.Hour
	case FrequencyWeekly:
		return 168 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// retryOffset is the shortened reschedule delay after a failed attempt.
func retryOffset(freq Frequency) time.Duration {
	switch freq {
	case FrequencySeveralPerWeek:
		return 4 * time.Hour
	case FrequencyWeekly:
		return 8 * time.Hour
	default:
		return 2 * time.Hour
	}
}

// bootstrapOffset draws a uniformly random first-schedule delay within the
// per-frequency bound: daily 1-7h, several-per-week 1-13h, weekly 1-25h.
func bootstrapOffset(freq Frequency) time.Duration {
	var span time.Duration
	switch freq {
	case FrequencySeveralPerWeek:
		span = 12 * time.Hour
	case FrequencyWeekly:
		span = 24 * time.Hour
	default:
		span = 6 * time.Hour
	}
	return time.Hour + rand.N(span)
}

// NextDue computes the next instant a user becomes eligible for a message.
//
// Normal and retry offsets are anchored to the canonical local hour for the
// user's time preference: the raw instant (now + offset) is converted into the
// user's zone, its clock time forced to the canonical hour, and pushed one day
// forward if the adjustment landed it at or before now. Bootstrap mode skips
// the anchoring and returns now plus the random stagger directly, so cohort
// load stays spread. The result is always strictly after now, in UTC.
func NextDue(now time.Time, freq Frequency, pref TimePreference, tz string, mode ScheduleMode) time.Time {
	if mode == ModeBootstrap {
		return now.Add(bootstrapOffset(freq)).UTC()
	}

	offset := normalOffset(freq)
	if mode == ModeRetry {
		offset = retryOffset(freq)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	local := now.Add(offset).In(loc)
	due := time.Date(local.Year(), local.Month(), local.Day(), CanonicalHour(pref), 0, 0, 0, loc)
	for !due.After(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due.UTC()
}

// NextWindowStart returns the next occurrence of the user's delivery window:
// today at the canonical hour if that is still ahead in local time, otherwise
// tomorrow. Used to defer users whose due-time fired outside their window.
func NextWindowStart(now time.Time, pref TimePreference, tz string) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), CanonicalHour(pref), 0, 0, 0, loc)
	if !start.After(local) {
		start = start.AddDate(0, 0, 1)
	}
	return start.UTC()
}

// ValidateTZ checks that tz is a loadable IANA zone and returns its canonical
// name.
func ValidateTZ(tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}
