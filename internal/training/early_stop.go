package training

// EarlyStopper tracks the best loss of an epoch loop. An epoch improves when
// its loss is below best-MinDelta; ties never reset the patience counter.
type EarlyStopper struct {
	Patience int
	MinDelta float64

	epoch     int
	bestEpoch int
	best      float64
}

// Observe records the loss of the next epoch and reports whether training
// should stop.
func (s *EarlyStopper) Observe(loss float64) bool {
	s.epoch++
	if s.bestEpoch == 0 || loss < s.best-s.MinDelta {
		s.best = loss
		s.bestEpoch = s.epoch
		return false
	}
	return s.Patience > 0 && s.epoch-s.bestEpoch >= s.Patience
}

// BestEpoch is 1-based; 0 means nothing was observed.
func (s *EarlyStopper) BestEpoch() int { return s.bestEpoch }

func (s *EarlyStopper) BestLoss() float64 { return s.best }

func (s *EarlyStopper) Epochs() int { return s.epoch }
