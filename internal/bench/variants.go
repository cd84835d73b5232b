package bench

// Variant tables map a base-task name to the numbered dimension variants the
// harness must execute for it. A base task absent from the table runs a single
// dimension 0 instance.

// TestVariants is the reduced table used for smoke runs: one representative
// dimension per parameterized base task.
func TestVariants() map[string][]int {
	return map[string][]int{
		"reactor":     {2},
		"firewall":    {1},
		"vault":       {1},
		"switchboard": {2},
	}
}

// FullVariants is the complete sweep table.
func FullVariants() map[string][]int {
	return map[string][]int{
		"reactor":     {0, 1, 2, 3, 4},
		"firewall":    {0, 1, 2, 3},
		"vault":       {0, 1, 2},
		"switchboard": {0, 1, 2, 3, 4},
	}
}

// DimensionsFor returns the dimensions to run for a task under the given
// variant table.
func DimensionsFor(table map[string][]int, task Task) []int {
	if dims, ok := table[task.Base()]; ok {
		return dims
	}
	return []int{0}
}
