package ladder

const (
	// UnrankedSentinel is the rank reported for a matchmaking type the user
	// has not played this season.
	UnrankedSentinel = -1

	// DefaultPlacementGames is the lifetime-games threshold below which a
	// rating is provisional and displayed as 0.
	DefaultPlacementGames = 5
)

// CompetitionRanks assigns 1-based display ranks to a list of point values
// that is already ordered by descending points.
//
// Consecutive equal points share a rank; the rank only advances (to the
// current 1-based position) when points strictly decrease. Ties therefore
// leave gaps: points [100, 100, 90] rank as [1, 1, 3].
//
// The same rule is applied on the live ladder at read time and once at
// season finalization, so a season's final ranks match what the ladder
// showed at the moment it closed.
func CompetitionRanks(points []float64) []int {
	ranks := make([]int, len(points))
	for i := range points {
		if i > 0 && points[i] == points[i-1] {
			ranks[i] = ranks[i-1]
			continue
		}
		ranks[i] = i + 1
	}
	return ranks
}
