package domain

import "fmt"

// State é a etapa de uma requisição no dispatcher.
//
//	Received -> Matching -> RateChecking -> Forwarding -> Completed
//	                |             |              |
//	           Rejected404   Rejected429     Failed504
type State int

const (
	Received State = iota
	Matching
	RateChecking
	Forwarding
	Completed
	Rejected404
	Rejected429
	Failed504
)

var stateNames = [...]string{
	Received:     "received",
	Matching:     "matching",
	RateChecking: "rate_checking",
	Forwarding:   "forwarding",
	Completed:    "completed",
	Rejected404:  "rejected_404",
	Rejected429:  "rejected_429",
	Failed504:    "failed_504",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal indica estados finais (nenhuma transição sai deles).
func (s State) Terminal() bool {
	return s >= Completed
}

var transitions = map[State][]State{
	Received:     {Matching},
	Matching:     {RateChecking, Rejected404},
	RateChecking: {Forwarding, Rejected429},
	Forwarding:   {Completed, Failed504},
}

func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Trace percorre a máquina de estados de uma requisição, uma única vez.
type Trace struct {
	state State
	path  []State
}

func NewTrace() *Trace {
	return &Trace{state: Received, path: []State{Received}}
}

// Advance move para `to`; transição inválida é bug de programação e gera panic.
func (t *Trace) Advance(to State) {
	if !t.state.CanTransition(to) {
		panic(fmt.Sprintf("gateway: invalid transition %s -> %s", t.state, to))
	}
	t.state = to
	t.path = append(t.path, to)
}

func (t *Trace) State() State { return t.state }

// Path devolve os estados visitados, na ordem.
func (t *Trace) Path() []State {
	out := make([]State, len(t.path))
	copy(out, t.path)
	return out
}
