package ml

// EarlyStopping halts training once validation accuracy has failed to beat
// the best value seen by more than MinDelta for Patience consecutive epochs.
// The weights at the moment of stopping are kept as they are.
type EarlyStopping struct {
	Patience int
	MinDelta float64

	best float64
	wait int
}

// NewEarlyStopping monitors validation accuracy.
func NewEarlyStopping(patience int, minDelta float64) *EarlyStopping {
	return &EarlyStopping{Patience: patience, MinDelta: minDelta}
}

// Observe records one epoch's validation accuracy and reports whether
// training should stop now.
func (e *EarlyStopping) Observe(valAcc float64) bool {
	if valAcc > e.best+e.MinDelta {
		e.best = valAcc
		e.wait = 0
		return false
	}
	e.wait++
	return e.wait >= e.Patience
}

// Best returns the best accuracy seen so far.
func (e *EarlyStopping) Best() float64 {
	return e.best
}
