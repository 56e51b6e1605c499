package consensus

import (
	"testing"

	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/types"
)

func TestRewardHalving(t *testing.T) {
	cfg := RewardConfig{BaseBlockReward: 100, PerTxReward: 1, HalvingInterval: 1000}
	b0 := &core.Block{Header: core.BlockHeader{Index: 0}}
	b1000 := &core.Block{Header: core.BlockHeader{Index: 1000}}
	b2000 := &core.Block{Header: core.BlockHeader{Index: 2000}}

	r0 := Reward(cfg, b0, 10)
	r1000 := Reward(cfg, b1000, 10)
	r2000 := Reward(cfg, b2000, 10)

	if r0 != 110 {
		t.Fatalf("expected 110, got %d", r0)
	}
	if r1000 != r0/2 {
		t.Fatalf("expected halved reward at height 1000, got %d want %d", r1000, r0/2)
	}
	if r2000 != r0/4 {
		t.Fatalf("expected quartered reward at height 2000, got %d want %d", r2000, r0/4)
	}
}

func TestApplySlashingCapsAtStake(t *testing.T) {
	v := &Validator{StakingAmount: 100}
	seized := ApplySlashing(v, 0.5)
	if seized != 50 || v.StakingAmount != 50 {
		t.Fatalf("expected seize 50 leaving 50, got seized=%d remaining=%d", seized, v.StakingAmount)
	}

	seized2 := ApplySlashing(v, 10) // fraction > 1, must cap at current stake
	if seized2 != 50 || v.StakingAmount != 0 {
		t.Fatalf("expected full remaining stake seized, got seized=%d remaining=%d", seized2, v.StakingAmount)
	}
	if v.Metrics.SlashingEvents != 2 {
		t.Fatalf("expected 2 slashing events, got %d", v.Metrics.SlashingEvents)
	}
}

func TestRecordSlotUpdatesUptime(t *testing.T) {
	v := &Validator{}
	RecordSlot(v, true)
	RecordSlot(v, true)
	RecordSlot(v, false)
	if v.Uptime != 2.0/3.0 {
		t.Fatalf("expected 2/3 uptime, got %f", v.Uptime)
	}
}

func TestIsFinal(t *testing.T) {
	if !IsFinal(types.BlockHeight(20), types.BlockHeight(8), 12) {
		t.Fatal("expected block at height 8 to be final at height 20 with 12 confirmations")
	}
	if IsFinal(types.BlockHeight(15), types.BlockHeight(8), 12) {
		t.Fatal("expected block at height 8 to not yet be final at height 15")
	}
}
