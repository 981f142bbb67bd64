package domain

import "testing"

func TestEvaluateAchievementsFiresOnce(t *testing.T) {
	t.Parallel()
	stats := CumulativeStats{TotalSessions: 1, TotalPages: 120}
	unlocked := map[AchievementType]struct{}{}

	fired := EvaluateAchievements(stats, unlocked)
	want := map[AchievementType]bool{AchievementFirstSession: true, AchievementHundredPages: true}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, want %d rules", fired, len(want))
	}
	for _, a := range fired {
		if !want[a] {
			t.Fatalf("unexpected achievement %s", a)
		}
		unlocked[a] = struct{}{}
	}

	if again := EvaluateAchievements(stats, unlocked); len(again) != 0 {
		t.Fatalf("already unlocked rules must not refire, got %v", again)
	}
}

func TestEvaluateAchievementsThresholds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		stats CumulativeStats
		fires AchievementType
	}{
		{"week streak", CumulativeStats{CurrentStreak: 7}, AchievementWeekStreak},
		{"marathon session", CumulativeStats{LongestSessionMins: 180}, AchievementMarathon},
		{"five thousand points", CumulativeStats{TotalPoints: 5000}, AchievementFiveThousand},
		{"thousand pages", CumulativeStats{TotalPages: 1000}, AchievementThousandPages},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fired := EvaluateAchievements(tc.stats, nil)
			found := false
			for _, a := range fired {
				if a == tc.fires {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s among %v", tc.fires, fired)
			}
		})
	}
}
