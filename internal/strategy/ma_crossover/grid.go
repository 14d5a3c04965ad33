package ma_crossover

// Grid returns every (fast, slow) combination with fast < slow as strategy
// parameters, in the order the periods are given.
func Grid(fasts, slows []int, maType MAType) []map[string]any {
	var grid []map[string]any
	for _, f := range fasts {
		for _, s := range slows {
			if f < 1 || f >= s {
				continue
			}
			grid = append(grid, map[string]any{
				"fast_period": f,
				"slow_period": s,
				"ma_type":     string(maType),
			})
		}
	}
	return grid
}
