package stakepool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"stakepool/crypto"
	pool "stakepool/native/stakepool"
	"stakepool/storage"
)

var (
	poolStateKey = []byte("stakepool/state")
	userPrefix   = []byte("stakepool/user/")
)

// Store persists the pool record and user accounts as RLP blobs in the
// underlying key-value store. It satisfies the engine's state interface.
type Store struct {
	db storage.Database
}

// NewStore constructs a store bound to the provided database backend.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

type storedStream struct {
	TotalAmount *big.Int
	ReleaseRate *big.Int
	StartTime   uint64
	EndTime     uint64
}

type storedLedger struct {
	Asset           []byte
	Endpoint        string
	Accumulator     *big.Int
	LastAccrualTime uint64
	Streams         []storedStream
}

type storedPool struct {
	StakeAsset    []byte
	StakeEndpoint string
	TotalStaked   *big.Int
	Manager       []byte
	RewardLedgers []storedLedger
}

type storedPosition struct {
	Asset   []byte
	Debt    *big.Int
	Pending *big.Int
}

type storedUser struct {
	Address   []byte
	Staked    *big.Int
	Positions []storedPosition
}

func userKey(addr crypto.Address) []byte {
	raw := addr.Bytes()
	buf := make([]byte, len(userPrefix)+len(raw))
	copy(buf, userPrefix)
	copy(buf[len(userPrefix):], raw)
	return buf
}

func decodeAddress(prefix crypto.AddressPrefix, raw []byte) (crypto.Address, error) {
	addr, err := crypto.NewAddress(prefix, raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("stakepool store: malformed address: %w", err)
	}
	return addr, nil
}

// PoolState loads the pool record. It returns ErrNotInitialized when the
// record has never been written and fails when the record is malformed.
func (s *Store) PoolState() (*pool.PoolState, error) {
	data, err := s.db.Get(poolStateKey)
	if err == storage.ErrKeyNotFound {
		return nil, pool.ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	var stored storedPool
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("stakepool store: decode pool state: %w", err)
	}
	return fromStoredPool(&stored)
}

// PutPoolState replaces the pool record.
func (s *Store) PutPoolState(state *pool.PoolState) error {
	if state == nil {
		return fmt.Errorf("stakepool store: pool state must not be nil")
	}
	encoded, err := rlp.EncodeToBytes(toStoredPool(state))
	if err != nil {
		return err
	}
	return s.db.Put(poolStateKey, encoded)
}

// UserAccount loads the account record for an address. The second return
// value reports whether the account exists.
func (s *Store) UserAccount(addr crypto.Address) (*pool.UserAccount, bool, error) {
	data, err := s.db.Get(userKey(addr))
	if err == storage.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedUser
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("stakepool store: decode user account: %w", err)
	}
	account, err := fromStoredUser(&stored)
	if err != nil {
		return nil, false, err
	}
	return account, true, nil
}

// PutUserAccount replaces the account record for the account's address.
func (s *Store) PutUserAccount(account *pool.UserAccount) error {
	if account == nil {
		return fmt.Errorf("stakepool store: user account must not be nil")
	}
	encoded, err := rlp.EncodeToBytes(toStoredUser(account))
	if err != nil {
		return err
	}
	return s.db.Put(userKey(account.Address), encoded)
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func toStoredPool(state *pool.PoolState) *storedPool {
	stored := &storedPool{
		StakeAsset:    state.StakeAsset.Bytes(),
		StakeEndpoint: state.StakeEndpoint,
		TotalStaked:   zeroIfNil(state.TotalStaked),
		Manager:       state.Manager.Bytes(),
	}
	for _, ledger := range state.RewardLedgers {
		sl := storedLedger{
			Asset:           ledger.Asset.Bytes(),
			Endpoint:        ledger.Endpoint,
			Accumulator:     zeroIfNil(ledger.Accumulator),
			LastAccrualTime: ledger.LastAccrualTime,
		}
		for _, stream := range ledger.Streams {
			sl.Streams = append(sl.Streams, storedStream{
				TotalAmount: zeroIfNil(stream.TotalAmount),
				ReleaseRate: zeroIfNil(stream.ReleaseRate),
				StartTime:   stream.StartTime,
				EndTime:     stream.EndTime,
			})
		}
		stored.RewardLedgers = append(stored.RewardLedgers, sl)
	}
	return stored
}

func fromStoredPool(stored *storedPool) (*pool.PoolState, error) {
	stakeAsset, err := decodeAddress(crypto.AssetPrefix, stored.StakeAsset)
	if err != nil {
		return nil, err
	}
	manager, err := decodeAddress(crypto.StakePrefix, stored.Manager)
	if err != nil {
		return nil, err
	}
	state := &pool.PoolState{
		StakeAsset:    stakeAsset,
		StakeEndpoint: stored.StakeEndpoint,
		TotalStaked:   zeroIfNil(stored.TotalStaked),
		Manager:       manager,
	}
	for _, sl := range stored.RewardLedgers {
		asset, err := decodeAddress(crypto.AssetPrefix, sl.Asset)
		if err != nil {
			return nil, err
		}
		ledger := &pool.RewardLedger{
			Asset:           asset,
			Endpoint:        sl.Endpoint,
			Accumulator:     zeroIfNil(sl.Accumulator),
			LastAccrualTime: sl.LastAccrualTime,
		}
		for _, stream := range sl.Streams {
			ledger.Streams = append(ledger.Streams, pool.RewardStream{
				TotalAmount: zeroIfNil(stream.TotalAmount),
				ReleaseRate: zeroIfNil(stream.ReleaseRate),
				StartTime:   stream.StartTime,
				EndTime:     stream.EndTime,
			})
		}
		state.RewardLedgers = append(state.RewardLedgers, ledger)
	}
	return state, nil
}

func toStoredUser(account *pool.UserAccount) *storedUser {
	stored := &storedUser{
		Address: account.Address.Bytes(),
		Staked:  zeroIfNil(account.Staked),
	}
	for _, pos := range account.Positions {
		stored.Positions = append(stored.Positions, storedPosition{
			Asset:   pos.Asset.Bytes(),
			Debt:    zeroIfNil(pos.Debt),
			Pending: zeroIfNil(pos.Pending),
		})
	}
	return stored
}

func fromStoredUser(stored *storedUser) (*pool.UserAccount, error) {
	addr, err := decodeAddress(crypto.StakePrefix, stored.Address)
	if err != nil {
		return nil, err
	}
	account := &pool.UserAccount{
		Address: addr,
		Staked:  zeroIfNil(stored.Staked),
	}
	for _, sp := range stored.Positions {
		asset, err := decodeAddress(crypto.AssetPrefix, sp.Asset)
		if err != nil {
			return nil, err
		}
		account.Positions = append(account.Positions, &pool.UserRewardPosition{
			Asset:   asset,
			Debt:    zeroIfNil(sp.Debt),
			Pending: zeroIfNil(sp.Pending),
		})
	}
	return account, nil
}
