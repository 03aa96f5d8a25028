package risktest

// Step is one recorded draw of a test
type Step struct {
	J      int
	X      float64
	Mu     float64
	Wager  float64 // λ for betting, η for alpha
	Tau    float64
	T      float64
	PValue float64
}

// Sequence records every step of a test run. A nil Sequence records nothing.
type Sequence struct {
	Steps []Step
}

func (s *Sequence) record(step Step) {
	if s == nil {
		return
	}
	s.Steps = append(s.Steps, step)
}

// Wealth returns T after each step
func (s *Sequence) Wealth() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.Steps))
	for i, st := range s.Steps {
		out[i] = st.T
	}
	return out
}
