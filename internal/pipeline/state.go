package pipeline

// State is the lifecycle position of a pipeline run.
type State string

// Run states, in the order a successful run passes through them.
const (
	StateIdle              State = "Idle"
	StateProbingVersion    State = "ProbingVersion"
	StateResolvingQueries  State = "ResolvingQueries"
	StateExecutingQueries  State = "ExecutingQueries"
	StateAnnotatingResults State = "AnnotatingResults"
	StateWritingReport     State = "WritingReport"
	StateDone              State = "Done"
	StateFailed            State = "Failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
