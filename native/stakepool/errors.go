package stakepool

import "errors"

var (
	// ErrNotInitialized is returned when the pool record has not been created.
	ErrNotInitialized = errors.New("stakepool: pool not initialised")
	// ErrAlreadyInitialized is returned when initialisation finds an existing
	// pool record.
	ErrAlreadyInitialized = errors.New("stakepool: pool already initialised")
	// ErrUnauthorized is returned when the caller lacks the manager role.
	ErrUnauthorized = errors.New("stakepool: caller is not the pool manager")
	// ErrDuplicateAsset is returned when registering a reward asset that is
	// already registered.
	ErrDuplicateAsset = errors.New("stakepool: reward asset already registered")
	// ErrAssetNotFound is returned when an operation references an unknown
	// reward asset.
	ErrAssetNotFound = errors.New("stakepool: reward asset not found")
	// ErrWrongAsset is returned when an inbound deposit originates from a
	// token other than the stake asset.
	ErrWrongAsset = errors.New("stakepool: transfer from unexpected asset")
	// ErrNoAccount is returned when the caller has never deposited.
	ErrNoAccount = errors.New("stakepool: no deposit found for this user")
	// ErrInsufficientStake is returned when a withdrawal exceeds the staked
	// balance.
	ErrInsufficientStake = errors.New("stakepool: insufficient staked amount")
	// ErrEmptyPool is returned when funding a reward stream while nothing is
	// staked; there is nowhere to attribute the reward.
	ErrEmptyPool = errors.New("stakepool: no staked tokens to distribute rewards")
	// ErrZeroDuration is returned when funding with a zero release duration,
	// which would divide by zero when deriving the release rate.
	ErrZeroDuration = errors.New("stakepool: release duration must be positive")
	// ErrNothingStaked is returned when claiming without an active stake.
	ErrNothingStaked = errors.New("stakepool: cannot claim rewards without a deposit")
	// ErrInvalidAmount is returned when an amount is nil or not positive.
	ErrInvalidAmount = errors.New("stakepool: amount must be positive")

	errNilState = errors.New("stakepool engine: state not configured")
)
