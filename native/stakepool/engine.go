package stakepool

import (
	"errors"
	"math/big"
	"time"

	"stakepool/core/events"
	"stakepool/crypto"
	nativecommon "stakepool/native/common"
)

const moduleName = "stakepool"

// engineState is the narrow persistence contract the engine depends on. The
// enclosing transaction commits or rolls back writes as a unit; the engine
// itself only persists after every in-memory mutation has succeeded.
type engineState interface {
	PoolState() (*PoolState, error)
	PutPoolState(pool *PoolState) error
	UserAccount(addr crypto.Address) (*UserAccount, bool, error)
	PutUserAccount(account *UserAccount) error
}

// RewardAssetInit seeds a reward ledger at pool creation time.
type RewardAssetInit struct {
	Asset    crypto.Address
	Endpoint string
}

// Engine orchestrates the state transitions for the staking pool. Every
// operation runs with exclusive access to the pool and the caller's account;
// the host serialises invocations.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine creates a pool engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses configures the pause view consulted before mutating operations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. The replacement
// must be monotonically non-decreasing; tests use this for deterministic
// timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// loadPool fetches the pool record and deep-copies it so a failed operation
// cannot leave partial mutations visible through the state layer.
func (e *Engine) loadPool() (*PoolState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.PoolState()
	if err != nil {
		return nil, err
	}
	clone := pool.Clone()
	clone.normalize()
	return clone, nil
}

func (e *Engine) loadUser(addr crypto.Address) (*UserAccount, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	user, ok, err := e.state.UserAccount(addr)
	if err != nil {
		return nil, false, err
	}
	if !ok || user == nil {
		return &UserAccount{Address: addr, Staked: big.NewInt(0)}, false, nil
	}
	clone := user.Clone()
	clone.normalize()
	return clone, true, nil
}

// Initialize creates the pool record. The caller becomes the immutable
// manager. The returned instructions register the pool as a receiver with the
// stake asset's endpoint and, when supplied, the initial reward asset's.
func (e *Engine) Initialize(manager, stakeAsset crypto.Address, stakeEndpoint string, initialReward *RewardAssetInit) ([]Instruction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.state.PoolState(); err == nil {
		return nil, ErrAlreadyInitialized
	} else if !errors.Is(err, ErrNotInitialized) {
		return nil, err
	}

	pool := &PoolState{
		StakeAsset:    stakeAsset,
		StakeEndpoint: stakeEndpoint,
		TotalStaked:   big.NewInt(0),
		Manager:       manager,
	}
	instructions := []Instruction{{
		Kind:     InstructionRegisterReceiver,
		Asset:    stakeAsset,
		Endpoint: stakeEndpoint,
	}}
	if initialReward != nil {
		pool.RewardLedgers = append(pool.RewardLedgers, &RewardLedger{
			Asset:           initialReward.Asset,
			Endpoint:        initialReward.Endpoint,
			Accumulator:     big.NewInt(0),
			LastAccrualTime: e.now(),
		})
		instructions = append(instructions, Instruction{
			Kind:     InstructionRegisterReceiver,
			Asset:    initialReward.Asset,
			Endpoint: initialReward.Endpoint,
		})
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return nil, err
	}
	e.emit(events.PoolInitialized{Manager: manager.String(), StakeAsset: stakeAsset.String()})
	return instructions, nil
}

// RegisterRewardAsset appends an empty reward ledger for a new asset. Only the
// manager may register assets, and asset identities must be unique.
func (e *Engine) RegisterRewardAsset(caller, asset crypto.Address, endpoint string) ([]Instruction, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if !caller.Equal(pool.Manager) {
		return nil, ErrUnauthorized
	}
	if pool.findLedger(asset) != nil {
		return nil, ErrDuplicateAsset
	}
	pool.RewardLedgers = append(pool.RewardLedgers, &RewardLedger{
		Asset:           asset,
		Endpoint:        endpoint,
		Accumulator:     big.NewInt(0),
		LastAccrualTime: e.now(),
	})
	if err := e.state.PutPoolState(pool); err != nil {
		return nil, err
	}
	e.emit(events.RewardAssetRegistered{Asset: asset.String(), Endpoint: endpoint})
	return []Instruction{{
		Kind:     InstructionRegisterReceiver,
		Asset:    asset,
		Endpoint: endpoint,
	}}, nil
}

// UpdateRewardAssetEndpoint rotates the transfer endpoint recorded for a
// registered reward asset. Accrued state is untouched.
func (e *Engine) UpdateRewardAssetEndpoint(caller, asset crypto.Address, endpoint string) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if !caller.Equal(pool.Manager) {
		return ErrUnauthorized
	}
	ledger := pool.findLedger(asset)
	if ledger == nil {
		return ErrAssetNotFound
	}
	ledger.Endpoint = endpoint
	if err := e.state.PutPoolState(pool); err != nil {
		return err
	}
	e.emit(events.RewardEndpointRotated{Asset: asset.String(), Endpoint: endpoint})
	return nil
}

// Deposit credits an inbound stake transfer to the sender's account. The
// transfer must originate from the registered stake asset.
func (e *Engine) Deposit(source, from crypto.Address, amount *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if !source.Equal(pool.StakeAsset) {
		return ErrWrongAsset
	}
	user, _, err := e.loadUser(from)
	if err != nil {
		return err
	}

	Advance(pool, user, e.now())

	user.Staked = new(big.Int).Add(user.Staked, amount)
	pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, amount)
	rebaseDebts(pool, user)

	if err := e.state.PutUserAccount(user); err != nil {
		return err
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return err
	}
	e.emit(events.PoolDeposit{From: from.String(), Amount: amount.String()})
	return nil
}

// FundRewardStream records an inbound reward transfer as a new release stream
// on the matching ledger. The stream starts immediately and releases
// amount/duration per second, truncated.
func (e *Engine) FundRewardStream(source crypto.Address, amount *big.Int, releaseDuration uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	if pool.TotalStaked.Sign() == 0 {
		return ErrEmptyPool
	}
	ledger := pool.findLedger(source)
	if ledger == nil {
		return ErrAssetNotFound
	}
	if releaseDuration == 0 {
		return ErrZeroDuration
	}

	now := e.now()
	advanceLedgers(pool, now)

	rate := new(big.Int).Quo(amount, new(big.Int).SetUint64(releaseDuration))
	ledger.Streams = append(ledger.Streams, RewardStream{
		TotalAmount: new(big.Int).Set(amount),
		ReleaseRate: rate,
		StartTime:   now,
		EndTime:     now + releaseDuration,
	})

	if err := e.state.PutPoolState(pool); err != nil {
		return err
	}
	e.emit(events.RewardStreamFunded{
		Asset:           source.String(),
		Amount:          amount.String(),
		ReleaseDuration: releaseDuration,
	})
	return nil
}

// Withdraw settles and pays out all pending rewards, then releases the
// requested stake amount back to the caller via the stake asset endpoint.
func (e *Engine) Withdraw(caller crypto.Address, amount *big.Int) ([]Instruction, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	user, ok, err := e.loadUser(caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoAccount
	}
	if user.Staked.Cmp(amount) < 0 {
		return nil, ErrInsufficientStake
	}

	Advance(pool, user, e.now())

	instructions, err := payoutInstructions(pool, user)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions, Instruction{
		Kind:      InstructionTransfer,
		Asset:     pool.StakeAsset,
		Endpoint:  pool.StakeEndpoint,
		Recipient: caller,
		Amount:    new(big.Int).Set(amount),
	})

	user.Staked = new(big.Int).Sub(user.Staked, amount)
	pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, amount)
	rebaseDebts(pool, user)

	if err := e.state.PutUserAccount(user); err != nil {
		return nil, err
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return nil, err
	}
	e.emit(events.PoolWithdraw{User: caller.String(), Amount: amount.String()})
	return instructions, nil
}

// Claim settles and pays out all pending rewards without touching the stake.
func (e *Engine) Claim(caller crypto.Address) ([]Instruction, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	user, ok, err := e.loadUser(caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoAccount
	}
	if user.Staked.Sign() == 0 {
		return nil, ErrNothingStaked
	}

	Advance(pool, user, e.now())

	instructions, err := payoutInstructions(pool, user)
	if err != nil {
		return nil, err
	}

	if err := e.state.PutUserAccount(user); err != nil {
		return nil, err
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return nil, err
	}
	e.emit(events.PoolRewardsClaimed{User: caller.String(), Transfers: len(instructions)})
	return instructions, nil
}

// payoutInstructions drains every nonzero pending balance into an outbound
// transfer instruction, in reward-position order.
func payoutInstructions(pool *PoolState, user *UserAccount) ([]Instruction, error) {
	var instructions []Instruction
	for _, pos := range user.Positions {
		if pos.Pending == nil || pos.Pending.Sign() == 0 {
			continue
		}
		ledger := pool.findLedger(pos.Asset)
		if ledger == nil {
			return nil, ErrAssetNotFound
		}
		instructions = append(instructions, Instruction{
			Kind:      InstructionTransfer,
			Asset:     pos.Asset,
			Endpoint:  ledger.Endpoint,
			Recipient: user.Address,
			Amount:    new(big.Int).Set(pos.Pending),
		})
		pos.Pending = big.NewInt(0)
	}
	return instructions, nil
}

// PoolSnapshot returns a copy of the stored pool record. The accumulators
// reflect the last settled accrual, not a live extrapolation.
func (e *Engine) PoolSnapshot() (*PoolState, error) {
	return e.loadPool()
}

// PendingRewards reports the caller's up-to-the-second claimable balances by
// running accrual against scratch copies of the pool and account. Stored
// state is not touched.
func (e *Engine) PendingRewards(addr crypto.Address) ([]PendingReward, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	user, ok, err := e.loadUser(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoAccount
	}

	Advance(pool, user, e.now())

	rewards := make([]PendingReward, 0, len(user.Positions))
	for _, pos := range user.Positions {
		rewards = append(rewards, PendingReward{
			Asset:   pos.Asset,
			Pending: copyBigInt(pos.Pending),
		})
	}
	return rewards, nil
}
