package domain

import (
	"sort"
	"time"
)

// Profile is the singleton per-user record of streaks and rewards.
type Profile struct {
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
	LastReadDate  time.Time `json:"last_read_date"`
	LastGraceDate time.Time `json:"last_grace_date"`
	TotalPoints   int       `json:"total_points"`
}

// StreakEvent is the append-only audit record of a grace application.
type StreakEvent struct {
	ID          string    `json:"id"`
	GapDate     time.Time `json:"gap_date"`
	UsedAt      time.Time `json:"used_at"`
	StreakAtUse int       `json:"streak_at_use"`
}

// GracePolicy bounds how often a streak grace may be consumed. The exact
// day-count boundaries are configuration, not invariants.
type GracePolicy struct {
	// WindowDays: at most one grace per rolling window of this many days.
	WindowDays int
	// MinStreakDays: a grace never covers the most recent few days of a
	// young streak; the streak must already be longer than this.
	MinStreakDays int
}

// StreakUpdate describes the outcome of advancing a streak by one session.
type StreakUpdate struct {
	Streak    int
	Longest   int
	GraceUsed bool
	GapDate   time.Time
}

// Day truncates a timestamp to local-calendar day granularity.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func daysBetween(earlier, later time.Time) int {
	return int(Day(later).Sub(Day(earlier)).Hours() / 24)
}

// AdvanceStreak applies one session's start date to the profile streak.
// Same day: no change. Next day: increment. A gap of exactly one missed day
// may consume a grace, bounded by policy and by the recorded events (never
// twice for the same gap). Anything larger resets to 1.
func AdvanceStreak(profile Profile, sessionDate time.Time, policy GracePolicy, events []StreakEvent) StreakUpdate {
	update := StreakUpdate{Streak: profile.CurrentStreak, Longest: profile.LongestStreak}

	if profile.LastReadDate.IsZero() {
		update.Streak = 1
	} else {
		switch gap := daysBetween(profile.LastReadDate, sessionDate); {
		case gap <= 0:
			// Same day, or a backdated session: streak unchanged.
		case gap == 1:
			update.Streak = profile.CurrentStreak + 1
		case gap == 2 && graceEligible(profile, sessionDate, policy, events):
			update.Streak = profile.CurrentStreak + 1
			update.GraceUsed = true
			update.GapDate = Day(sessionDate).AddDate(0, 0, -1)
		default:
			update.Streak = 1
		}
	}

	if update.Streak > update.Longest {
		update.Longest = update.Streak
	}
	return update
}

func graceEligible(profile Profile, sessionDate time.Time, policy GracePolicy, events []StreakEvent) bool {
	if profile.CurrentStreak <= policy.MinStreakDays {
		return false
	}
	if !profile.LastGraceDate.IsZero() && daysBetween(profile.LastGraceDate, sessionDate) < policy.WindowDays {
		return false
	}
	gapDate := Day(sessionDate).AddDate(0, 0, -1)
	for _, event := range events {
		if Day(event.GapDate).Equal(gapDate) {
			return false
		}
	}
	return true
}

// RecomputeStreak rebuilds the streak counters from the full session-date
// history plus the recorded grace events. It must agree with the value the
// incremental updates produced over the same history, so gaps are pardoned
// exactly where an audit event exists rather than re-deciding eligibility.
func RecomputeStreak(sessionDates []time.Time, events []StreakEvent) Profile {
	if len(sessionDates) == 0 {
		return Profile{}
	}
	days := make([]time.Time, 0, len(sessionDates))
	for _, d := range sessionDates {
		days = append(days, Day(d))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	pardoned := make(map[time.Time]struct{}, len(events))
	var lastGrace time.Time
	for _, event := range events {
		pardoned[Day(event.GapDate)] = struct{}{}
		if event.UsedAt.After(lastGrace) {
			lastGrace = event.UsedAt
		}
	}

	profile := Profile{CurrentStreak: 1, LongestStreak: 1, LastReadDate: days[0], LastGraceDate: lastGrace}
	for _, day := range days[1:] {
		switch gap := daysBetween(profile.LastReadDate, day); {
		case gap <= 0:
			// duplicate day
		case gap == 1:
			profile.CurrentStreak++
		case gap == 2:
			if _, ok := pardoned[day.AddDate(0, 0, -1)]; ok {
				profile.CurrentStreak++
			} else {
				profile.CurrentStreak = 1
			}
		default:
			profile.CurrentStreak = 1
		}
		if profile.CurrentStreak > profile.LongestStreak {
			profile.LongestStreak = profile.CurrentStreak
		}
		profile.LastReadDate = day
	}
	return profile
}
