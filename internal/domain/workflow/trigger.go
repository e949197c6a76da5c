package workflow

// Trigger represents an approver action that can cause a state transition
type Trigger string

const (
	TriggerApprove Trigger = "approve"
	TriggerReject  Trigger = "reject"
	TriggerReturn  Trigger = "return"
)

var validTriggers = map[Trigger]bool{
	TriggerApprove: true,
	TriggerReject:  true,
	TriggerReturn:  true,
}

// IsValid returns true if the trigger is a known action
func (t Trigger) IsValid() bool {
	return validTriggers[t]
}

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
