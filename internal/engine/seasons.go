// Market calendar: days, seasons and years.
package engine

import "fmt"

// DaysPerSeason is the length of a SimDate season.
const DaysPerSeason = 90

// Season constants.
const (
	SeasonSpring = 0
	SeasonSummer = 1
	SeasonAutumn = 2
	SeasonWinter = 3
)

// SeasonName returns a human-readable season name.
func SeasonName(season uint8) string {
	switch season {
	case SeasonSpring:
		return "Spring"
	case SeasonSummer:
		return "Summer"
	case SeasonAutumn:
		return "Autumn"
	case SeasonWinter:
		return "Winter"
	default:
		return "Unknown"
	}
}

// SeasonOf returns the season a day falls in.
func SeasonOf(day uint64) uint8 {
	return uint8((day / DaysPerSeason) % 4)
}

// SimDate renders a day count as a calendar date, e.g. "Summer Day 3, Year 1".
// Day 0 is the morning before the first tick.
func SimDate(day uint64) string {
	year := day/(4*DaysPerSeason) + 1
	return fmt.Sprintf("%s Day %d, Year %d", SeasonName(SeasonOf(day)), day%DaysPerSeason+1, year)
}
