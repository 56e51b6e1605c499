package consensus

import "testing"

func TestStateMachineActiveToJailedAndBack(t *testing.T) {
	policy := StateMachinePolicy{MaxMissedSlots: 3, SlashingEventsToBan: 5}
	v := &Validator{State: StateActive}

	v.Metrics.MissedSlots = 3
	if Evaluate(policy, v) != StateJailed {
		t.Fatal("expected transition to Jailed after exceeding missed-slot quota")
	}

	Restake(v)
	if v.State != StateActive {
		t.Fatal("expected restake to return validator to Active")
	}
}

func TestStateMachineBannedIsTerminal(t *testing.T) {
	policy := StateMachinePolicy{MaxMissedSlots: 3, SlashingEventsToBan: 2}
	v := &Validator{State: StateActive}
	v.Metrics.SlashingEvents = 2
	if Evaluate(policy, v) != StateBanned {
		t.Fatal("expected ban after reaching slashing-events threshold")
	}
	v.Metrics.MissedSlots = 0
	if Evaluate(policy, v) != StateBanned {
		t.Fatal("expected banned state to be terminal")
	}
}
