package consensus

// StateMachinePolicy configures the thresholds that drive the validator state
// machine of spec.md §4.4: Active -> (missed quota exceeded) -> Jailed ->
// (restake or timeout) -> Active; Banned is terminal.
type StateMachinePolicy struct {
	MaxMissedSlots     uint64
	SlashingEventsToBan uint64
}

// Evaluate advances v's state given the policy, returning the new state. It
// reads v's current metrics; RecordSlot and ApplySlashing do not call it.
func Evaluate(policy StateMachinePolicy, v *Validator) ValidatorState {
	if v.State == StateBanned {
		return StateBanned
	}
	if v.Metrics.SlashingEvents >= policy.SlashingEventsToBan {
		v.State = StateBanned
		return v.State
	}
	switch v.State {
	case StateActive:
		if v.Metrics.MissedSlots >= policy.MaxMissedSlots {
			v.State = StateJailed
		}
	case StateJailed:
		if v.Metrics.MissedSlots < policy.MaxMissedSlots {
			v.State = StateActive
		}
	}
	return v.State
}

// Restake clears a jailed validator's missed-slot counter and returns it to
// Active, modelling the "restake" transition out of Jailed.
func Restake(v *Validator) {
	if v.State != StateJailed {
		return
	}
	v.Metrics.MissedSlots = 0
	v.State = StateActive
}
