package pipeline

// Gate is the frame-admission policy: it forwards every k-th frame by
// sequence position and additionally sheds otherwise-admitted frames while
// the downstream queue is over its backlog ceiling. The decision is cheap
// and never blocks capture.
type Gate struct {
	skip    int
	ceiling int
}

// NewGate builds a gate. Both arguments are validated at configuration time;
// skip < 1 or ceiling < 1 never reach here.
func NewGate(skip, ceiling int) *Gate {
	return &Gate{skip: skip, ceiling: ceiling}
}

// Decision says what happened to a frame at the gate.
type Decision int

const (
	Admit Decision = iota
	DropSkip
	DropBacklog
)

// Decide returns the admission decision for the frame at the given sequence
// position, with backlog the current depth of the downstream queue.
func (g *Gate) Decide(index int64, backlog int) Decision {
	if index%int64(g.skip) != 0 {
		return DropSkip
	}
	if backlog > g.ceiling {
		return DropBacklog
	}
	return Admit
}
