package orchestrator

// State names the phase a request is in. The normal path is
// idle → processing_request → executing_tools? → completed; streaming
// requests go idle → streaming_response → completed. The error state
// is reachable from any in-flight state.
type State string

const (
	StateIdle              State = "idle"
	StateProcessing        State = "processing_request"
	StateExecutingTools    State = "executing_tools"
	StateStreamingResponse State = "streaming_response"
	StateCompleted         State = "completed"
	StateError             State = "error"
)

// validTransitions encodes the request state machine.
var validTransitions = map[State][]State{
	StateIdle:              {StateProcessing, StateStreamingResponse},
	StateProcessing:        {StateExecutingTools, StateCompleted, StateError},
	StateExecutingTools:    {StateCompleted, StateError},
	StateStreamingResponse: {StateCompleted, StateError},
	StateCompleted:         nil,
	StateError:             nil,
}

// CanTransition reports whether moving from one state to another is
// legal.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// requestState tracks one request's progress through the state
// machine. Illegal transitions indicate a pipeline bug; they are
// logged by the orchestrator rather than failing the request.
type requestState struct {
	current State
}

func newRequestState() *requestState {
	return &requestState{current: StateIdle}
}

// advance moves to the next state and reports whether the transition
// was legal.
func (s *requestState) advance(to State) bool {
	ok := CanTransition(s.current, to)
	s.current = to
	return ok
}
