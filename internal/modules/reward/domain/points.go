package domain

// Points is the single source of truth for session rewards. Every surface
// that previews a projected reward calls this same function, so previews
// match final values exactly.
func Points(pagesRead, durationMinutes int) int {
	if pagesRead < 0 {
		pagesRead = 0
	}
	return pagesRead*10 + durationBonus(durationMinutes)
}

func durationBonus(minutes int) int {
	switch {
	case minutes >= 180:
		return 200
	case minutes >= 120:
		return 100
	case minutes >= 60:
		return 50
	default:
		return 0
	}
}

// Level derives a display level from accumulated points. Monotonic in XP.
func Level(totalPoints int) int {
	if totalPoints <= 0 {
		return 1
	}
	level := 1
	for threshold := 100; totalPoints >= threshold; threshold += 100 * level {
		level++
	}
	return level
}
