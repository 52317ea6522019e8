package domain

// CheckResult is the outcome of one validation check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// ValidationResult is the output of the validator engine for one snapshot.
// Passed is true only when every individual check passed; failed checks are
// echoed into RedFlags. The result is a pure deterministic function of the
// snapshot and the configured thresholds.
type ValidationResult struct {
	PairID   string        `json:"pair_id"`
	Passed   bool          `json:"passed"`
	Checks   []CheckResult `json:"checks"`
	RedFlags []string      `json:"red_flags"`
}

// PassedCount returns the number of passing checks.
func (r *ValidationResult) PassedCount() int {
	n := 0
	for _, c := range r.Checks {
		if c.Passed {
			n++
		}
	}
	return n
}
