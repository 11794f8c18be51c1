package gate

// State is a step of the request gate. A request moves through the states in
// order and stops at the first one that rejects it.
type State int

const (
	StateReceived State = iota
	StateLicenseChecked
	StateLimitsChecked
	StateProviderCalled
	StateLogged
	StateResponded
)

var stateNames = [...]string{
	StateReceived:       "received",
	StateLicenseChecked: "license_checked",
	StateLimitsChecked:  "limits_checked",
	StateProviderCalled: "provider_called",
	StateLogged:         "logged",
	StateResponded:      "responded",
}

// String returns the state name used in logs and span attributes.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
