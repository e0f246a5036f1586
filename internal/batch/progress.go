package batch

// Progress receives per-item progress from a batch operation.
type Progress interface {
	SetTotal(total int)
	Advance()
}

// Discard is a Progress that ignores every update.
var Discard Progress = discard{}

type discard struct{}

func (discard) SetTotal(int) {}
func (discard) Advance()     {}

// OrDiscard returns p, or Discard when p is nil.
func OrDiscard(p Progress) Progress {
	if p == nil {
		return Discard
	}

	return p
}
