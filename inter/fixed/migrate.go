package fixed

// migrate.go is the single place where Fixed values may touch native floating
// point. These helpers exist for importing externally-trained model artifacts
// and for human-readable diagnostics. They must never be called from code
// that is reachable during consensus: a float anywhere in that path breaks
// cross-platform bit reproducibility.

// ImportFloat converts a float to Fixed by rounding half away from zero at
// micro precision. Import/migration use only.
func ImportFloat(v float64) Fixed {
	if v >= 0 {
		return Fixed(int64(v*Scale + 0.5))
	}
	return Fixed(int64(v*Scale - 0.5))
}

// ExportFloat renders a Fixed as a float for display and logging only.
func ExportFloat(f Fixed) float64 {
	return float64(f) / Scale
}
