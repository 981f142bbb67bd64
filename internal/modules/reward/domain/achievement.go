package domain

// AchievementType identifies a rule; each fires at most once per profile.
type AchievementType string

const (
	AchievementFirstSession  AchievementType = "first_session"
	AchievementTenSessions   AchievementType = "ten_sessions"
	AchievementHundredPages  AchievementType = "hundred_pages"
	AchievementThousandPages AchievementType = "thousand_pages"
	AchievementWeekStreak    AchievementType = "week_streak"
	AchievementMonthStreak   AchievementType = "month_streak"
	AchievementMarathon      AchievementType = "marathon_session"
	AchievementFiveThousand  AchievementType = "five_thousand_points"
)

// CumulativeStats feeds achievement evaluation.
type CumulativeStats struct {
	TotalSessions      int
	TotalPages         int
	TotalMinutes       int
	LongestSessionMins int
	CurrentStreak      int
	TotalPoints        int
}

type achievementRule struct {
	Type AchievementType
	Met  func(stats CumulativeStats) bool
}

var achievementRules = []achievementRule{
	{AchievementFirstSession, func(s CumulativeStats) bool { return s.TotalSessions >= 1 }},
	{AchievementTenSessions, func(s CumulativeStats) bool { return s.TotalSessions >= 10 }},
	{AchievementHundredPages, func(s CumulativeStats) bool { return s.TotalPages >= 100 }},
	{AchievementThousandPages, func(s CumulativeStats) bool { return s.TotalPages >= 1000 }},
	{AchievementWeekStreak, func(s CumulativeStats) bool { return s.CurrentStreak >= 7 }},
	{AchievementMonthStreak, func(s CumulativeStats) bool { return s.CurrentStreak >= 30 }},
	{AchievementMarathon, func(s CumulativeStats) bool { return s.LongestSessionMins >= 180 }},
	{AchievementFiveThousand, func(s CumulativeStats) bool { return s.TotalPoints >= 5000 }},
}

// EvaluateAchievements returns the rules newly met by stats, excluding
// anything already unlocked. Idempotent: feeding the result back into
// unlocked and re-evaluating yields nothing.
func EvaluateAchievements(stats CumulativeStats, unlocked map[AchievementType]struct{}) []AchievementType {
	fired := []AchievementType{}
	for _, rule := range achievementRules {
		if _, done := unlocked[rule.Type]; done {
			continue
		}
		if rule.Met(stats) {
			fired = append(fired, rule.Type)
		}
	}
	return fired
}
