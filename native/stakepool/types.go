package stakepool

import (
	"math/big"

	"stakepool/crypto"
)

// PoolState captures the global accounting state for the staking pool. Amount
// values are expressed as big integers; all arithmetic truncates.
type PoolState struct {
	// StakeAsset identifies the token users deposit to earn rewards.
	StakeAsset crypto.Address
	// StakeEndpoint is the routing metadata for the stake asset's transfer
	// sub-system.
	StakeEndpoint string
	// TotalStaked is the sum of all user staked amounts. It must equal the sum
	// of UserAccount.Staked across all accounts at all times.
	TotalStaked *big.Int
	// Manager is the principal authorised to register reward assets and rotate
	// endpoint metadata.
	Manager crypto.Address
	// RewardLedgers holds one ledger per registered reward asset, in
	// registration order. Asset identities are unique within the list.
	RewardLedgers []*RewardLedger
}

// RewardLedger tracks the cumulative reward-per-staked-unit for one reward
// asset together with its active funding streams.
type RewardLedger struct {
	// Asset identifies the reward token.
	Asset crypto.Address
	// Endpoint is the routing metadata for this reward asset's transfers.
	Endpoint string
	// Accumulator is the cumulative reward per staked unit. It never
	// decreases.
	Accumulator *big.Int
	// LastAccrualTime records the unix second through which the accumulator
	// has been advanced.
	LastAccrualTime uint64
	// Streams lists the funding streams that have not yet fully released.
	Streams []RewardStream
}

// RewardStream is one bounded-duration, constant-rate funding event for a
// reward asset.
type RewardStream struct {
	// TotalAmount is the amount transferred in by the funder.
	TotalAmount *big.Int
	// ReleaseRate is the amount released per second, truncated.
	ReleaseRate *big.Int
	// StartTime marks the boundary up to which the stream's release has been
	// folded into the ledger accumulator. It is re-based forward on every
	// accrual so elapsed seconds are never counted twice.
	StartTime uint64
	// EndTime is the instant the stream stops releasing.
	EndTime uint64
}

// UserAccount maintains the staking position for an individual depositor.
// Accounts are created on first deposit and may decay to zero balances but are
// never deleted.
type UserAccount struct {
	// Address is the depositor identity.
	Address crypto.Address
	// Staked is the user's current stake.
	Staked *big.Int
	// Positions holds one reward position per reward asset the user has been
	// exposed to, lazily created in ledger order.
	Positions []*UserRewardPosition
}

// UserRewardPosition records the settlement point and claimable balance for
// one user against one reward asset.
type UserRewardPosition struct {
	// Asset identifies the reward token.
	Asset crypto.Address
	// Debt is the accumulator value last settled against, scaled by the
	// user's stake.
	Debt *big.Int
	// Pending is the claimable balance accrued but not yet paid out. It only
	// decreases when zeroed by a claim.
	Pending *big.Int
}

// InstructionKind discriminates outbound instructions handed back to the host.
type InstructionKind string

const (
	// InstructionRegisterReceiver asks the host to register the pool as a
	// receiver with a token's transfer endpoint.
	InstructionRegisterReceiver InstructionKind = "register_receiver"
	// InstructionTransfer asks the host to move reward tokens to a recipient.
	InstructionTransfer InstructionKind = "transfer"
)

// Instruction is an outbound message for the host's token sub-system. Delivery
// is fire-and-forget from the pool's perspective.
type Instruction struct {
	Kind      InstructionKind `json:"kind"`
	Asset     crypto.Address  `json:"-"`
	Endpoint  string          `json:"endpoint"`
	Recipient crypto.Address  `json:"-"`
	Amount    *big.Int        `json:"amount,omitempty"`
}

// PendingReward reports the claimable balance for one reward asset.
type PendingReward struct {
	Asset   crypto.Address
	Pending *big.Int
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Clone produces a deep copy so scratch accrual runs cannot leak mutations
// back into stored state.
func (p *PoolState) Clone() *PoolState {
	if p == nil {
		return nil
	}
	clone := &PoolState{
		StakeAsset:    p.StakeAsset,
		StakeEndpoint: p.StakeEndpoint,
		TotalStaked:   copyBigInt(p.TotalStaked),
		Manager:       p.Manager,
	}
	if len(p.RewardLedgers) > 0 {
		clone.RewardLedgers = make([]*RewardLedger, 0, len(p.RewardLedgers))
		for _, ledger := range p.RewardLedgers {
			clone.RewardLedgers = append(clone.RewardLedgers, ledger.Clone())
		}
	}
	return clone
}

// Clone produces a deep copy of the ledger and its streams.
func (l *RewardLedger) Clone() *RewardLedger {
	if l == nil {
		return nil
	}
	clone := &RewardLedger{
		Asset:           l.Asset,
		Endpoint:        l.Endpoint,
		Accumulator:     copyBigInt(l.Accumulator),
		LastAccrualTime: l.LastAccrualTime,
	}
	if len(l.Streams) > 0 {
		clone.Streams = make([]RewardStream, len(l.Streams))
		for i, stream := range l.Streams {
			clone.Streams[i] = RewardStream{
				TotalAmount: copyBigInt(stream.TotalAmount),
				ReleaseRate: copyBigInt(stream.ReleaseRate),
				StartTime:   stream.StartTime,
				EndTime:     stream.EndTime,
			}
		}
	}
	return clone
}

// Clone produces a deep copy of the account and its reward positions.
func (u *UserAccount) Clone() *UserAccount {
	if u == nil {
		return nil
	}
	clone := &UserAccount{
		Address: u.Address,
		Staked:  copyBigInt(u.Staked),
	}
	if len(u.Positions) > 0 {
		clone.Positions = make([]*UserRewardPosition, 0, len(u.Positions))
		for _, pos := range u.Positions {
			clone.Positions = append(clone.Positions, &UserRewardPosition{
				Asset:   pos.Asset,
				Debt:    copyBigInt(pos.Debt),
				Pending: copyBigInt(pos.Pending),
			})
		}
	}
	return clone
}

func (p *PoolState) normalize() {
	if p.TotalStaked == nil {
		p.TotalStaked = big.NewInt(0)
	}
	for _, ledger := range p.RewardLedgers {
		if ledger.Accumulator == nil {
			ledger.Accumulator = big.NewInt(0)
		}
	}
}

func (u *UserAccount) normalize() {
	if u.Staked == nil {
		u.Staked = big.NewInt(0)
	}
	for _, pos := range u.Positions {
		if pos.Debt == nil {
			pos.Debt = big.NewInt(0)
		}
		if pos.Pending == nil {
			pos.Pending = big.NewInt(0)
		}
	}
}

func (p *PoolState) findLedger(asset crypto.Address) *RewardLedger {
	for _, ledger := range p.RewardLedgers {
		if ledger.Asset.Equal(asset) {
			return ledger
		}
	}
	return nil
}

func (u *UserAccount) findPosition(asset crypto.Address) *UserRewardPosition {
	for _, pos := range u.Positions {
		if pos.Asset.Equal(asset) {
			return pos
		}
	}
	return nil
}
