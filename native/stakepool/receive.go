package stakepool

import (
	"errors"
	"math/big"

	"stakepool/crypto"
)

// ErrUnknownPayload is returned when an inbound transfer carries a payload
// that is neither a deposit nor a reward funding request.
var ErrUnknownPayload = errors.New("stakepool: unsupported receive payload")

// DepositMsg marks an inbound transfer as a stake deposit.
type DepositMsg struct{}

// FundRewardsMsg marks an inbound transfer as reward stream funding.
type FundRewardsMsg struct {
	ReleaseDuration uint64 `json:"releaseDuration"`
}

// ReceiveMsg is the payload attached to an inbound token transfer
// notification. Exactly one field must be set.
type ReceiveMsg struct {
	Deposit     *DepositMsg     `json:"deposit,omitempty"`
	FundRewards *FundRewardsMsg `json:"fund_rewards,omitempty"`
}

// Receive dispatches an inbound transfer notification. The source asset is the
// token that performed the transfer; the sender is the originating account.
// Transfers from unregistered assets or with unknown payloads are rejected in
// full.
func (e *Engine) Receive(source, sender crypto.Address, amount *big.Int, msg ReceiveMsg) error {
	switch {
	case msg.Deposit != nil && msg.FundRewards == nil:
		return e.Deposit(source, sender, amount)
	case msg.FundRewards != nil && msg.Deposit == nil:
		return e.FundRewardStream(source, amount, msg.FundRewards.ReleaseDuration)
	default:
		return ErrUnknownPayload
	}
}
