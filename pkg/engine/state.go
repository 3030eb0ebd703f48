package engine

// State is a phase of the engine lifecycle
type State string

const (
	StateIdle               State = "idle"
	StateConnecting         State = "connecting"
	StateAuthenticating     State = "authenticating"
	StateScanning           State = "scanning"
	StateWaitingOnRateLimit State = "waiting_on_rate_limit"
	StateDraining           State = "draining"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// AllStates lists every state in lifecycle order
var AllStates = []State{
	StateIdle,
	StateConnecting,
	StateAuthenticating,
	StateScanning,
	StateWaitingOnRateLimit,
	StateDraining,
	StateDone,
	StateFailed,
}

func stateNames() []string {
	names := make([]string, len(AllStates))
	for i, s := range AllStates {
		names[i] = string(s)
	}
	return names
}
