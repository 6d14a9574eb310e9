package types

// Sample is one recorded scalar observation within a run.
type Sample struct {
	WallTime  float64 `json:"walltime"`
	Iteration int     `json:"iteration"`
	Value     float64 `json:"value"`
}

// Series is the ordered scalar history for one metric within one run.
type Series []Sample

func (s Series) Empty() bool {
	return len(s) == 0
}

// Latest returns the newest sample: the one with the highest iteration,
// and among duplicates of that iteration the one recorded last by wall
// clock. The second return is false for an empty series.
func (s Series) Latest() (Sample, bool) {
	if len(s) == 0 {
		return Sample{}, false
	}
	latest := s[0]
	for _, sample := range s[1:] {
		if sample.Iteration > latest.Iteration {
			latest = sample
			continue
		}
		if sample.Iteration == latest.Iteration && sample.WallTime >= latest.WallTime {
			latest = sample
		}
	}
	return latest, true
}
