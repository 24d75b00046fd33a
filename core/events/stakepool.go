package events

import (
	"strconv"

	"stakepool/core/types"
)

const (
	// TypePoolInitialized is emitted once when the pool record is created.
	TypePoolInitialized = "stakepool.initialized"
	// TypePoolDeposit captures a stake deposit credited to an account.
	TypePoolDeposit = "stakepool.deposit"
	// TypePoolWithdraw captures stake released back to a depositor.
	TypePoolWithdraw = "stakepool.withdraw"
	// TypePoolRewardsClaimed captures a reward payout batch.
	TypePoolRewardsClaimed = "stakepool.rewardsClaimed"
	// TypeRewardStreamFunded captures a new reward release stream.
	TypeRewardStreamFunded = "stakepool.streamFunded"
	// TypeRewardAssetRegistered captures a newly registered reward ledger.
	TypeRewardAssetRegistered = "stakepool.rewardAssetRegistered"
	// TypeRewardEndpointRotated captures reward endpoint metadata rotation.
	TypeRewardEndpointRotated = "stakepool.rewardEndpointRotated"
)

// PoolInitialized records pool creation.
type PoolInitialized struct {
	Manager    string
	StakeAsset string
}

// EventType satisfies the Event interface.
func (PoolInitialized) EventType() string { return TypePoolInitialized }

// Event converts the structured payload into a broadcastable event.
func (e PoolInitialized) Event() *types.Event {
	return &types.Event{Type: TypePoolInitialized, Attributes: map[string]string{
		"manager":    e.Manager,
		"stakeAsset": e.StakeAsset,
	}}
}

// PoolDeposit records a credited stake deposit.
type PoolDeposit struct {
	From   string
	Amount string
}

// EventType satisfies the Event interface.
func (PoolDeposit) EventType() string { return TypePoolDeposit }

// Event converts the structured payload into a broadcastable event.
func (e PoolDeposit) Event() *types.Event {
	return &types.Event{Type: TypePoolDeposit, Attributes: map[string]string{
		"from":   e.From,
		"amount": e.Amount,
	}}
}

// PoolWithdraw records stake released back to its owner.
type PoolWithdraw struct {
	User   string
	Amount string
}

// EventType satisfies the Event interface.
func (PoolWithdraw) EventType() string { return TypePoolWithdraw }

// Event converts the structured payload into a broadcastable event.
func (e PoolWithdraw) Event() *types.Event {
	return &types.Event{Type: TypePoolWithdraw, Attributes: map[string]string{
		"user":   e.User,
		"amount": e.Amount,
	}}
}

// PoolRewardsClaimed records a reward payout batch for one account.
type PoolRewardsClaimed struct {
	User      string
	Transfers int
}

// EventType satisfies the Event interface.
func (PoolRewardsClaimed) EventType() string { return TypePoolRewardsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e PoolRewardsClaimed) Event() *types.Event {
	return &types.Event{Type: TypePoolRewardsClaimed, Attributes: map[string]string{
		"user":      e.User,
		"transfers": strconv.Itoa(e.Transfers),
	}}
}

// RewardStreamFunded records a new release stream appended to a ledger.
type RewardStreamFunded struct {
	Asset           string
	Amount          string
	ReleaseDuration uint64
}

// EventType satisfies the Event interface.
func (RewardStreamFunded) EventType() string { return TypeRewardStreamFunded }

// Event converts the structured payload into a broadcastable event.
func (e RewardStreamFunded) Event() *types.Event {
	return &types.Event{Type: TypeRewardStreamFunded, Attributes: map[string]string{
		"asset":           e.Asset,
		"amount":          e.Amount,
		"releaseDuration": strconv.FormatUint(e.ReleaseDuration, 10),
	}}
}

// RewardAssetRegistered records a new reward ledger.
type RewardAssetRegistered struct {
	Asset    string
	Endpoint string
}

// EventType satisfies the Event interface.
func (RewardAssetRegistered) EventType() string { return TypeRewardAssetRegistered }

// Event converts the structured payload into a broadcastable event.
func (e RewardAssetRegistered) Event() *types.Event {
	return &types.Event{Type: TypeRewardAssetRegistered, Attributes: map[string]string{
		"asset":    e.Asset,
		"endpoint": e.Endpoint,
	}}
}

// RewardEndpointRotated records rotated endpoint metadata for a reward asset.
type RewardEndpointRotated struct {
	Asset    string
	Endpoint string
}

// EventType satisfies the Event interface.
func (RewardEndpointRotated) EventType() string { return TypeRewardEndpointRotated }

// Event converts the structured payload into a broadcastable event.
func (e RewardEndpointRotated) Event() *types.Event {
	return &types.Event{Type: TypeRewardEndpointRotated, Attributes: map[string]string{
		"asset":    e.Asset,
		"endpoint": e.Endpoint,
	}}
}
