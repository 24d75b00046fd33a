package stakepool

import (
	"bytes"
	"math/big"
	"testing"

	"stakepool/crypto"
)

func testUserAddr(tag byte) crypto.Address {
	return crypto.MustNewAddress(crypto.StakePrefix, bytes.Repeat([]byte{tag}, crypto.AddressLength))
}

func testAssetAddr(tag byte) crypto.Address {
	return crypto.MustNewAddress(crypto.AssetPrefix, bytes.Repeat([]byte{tag}, crypto.AddressLength))
}

func newTestPool(totalStaked int64, ledgers ...*RewardLedger) *PoolState {
	return &PoolState{
		StakeAsset:    testAssetAddr(0xaa),
		StakeEndpoint: "stake-hub",
		TotalStaked:   big.NewInt(totalStaked),
		Manager:       testUserAddr(0x01),
		RewardLedgers: ledgers,
	}
}

func newTestLedger(asset crypto.Address, streams ...RewardStream) *RewardLedger {
	return &RewardLedger{
		Asset:       asset,
		Endpoint:    "reward-hub",
		Accumulator: big.NewInt(0),
		Streams:     streams,
	}
}

func stream(total, rate int64, start, end uint64) RewardStream {
	return RewardStream{
		TotalAmount: big.NewInt(total),
		ReleaseRate: big.NewInt(rate),
		StartTime:   start,
		EndTime:     end,
	}
}

func TestAdvanceFoldsStreamRelease(t *testing.T) {
	asset := testAssetAddr(0xbb)
	pool := newTestPool(100, newTestLedger(asset, stream(1000, 10, 1000, 1100)))
	user := &UserAccount{Address: testUserAddr(0x02), Staked: big.NewInt(100)}
	rebaseDebts(pool, user)

	Advance(pool, user, 1050)

	ledger := pool.RewardLedgers[0]
	if got := ledger.Accumulator.Int64(); got != 5 {
		t.Fatalf("expected accumulator 5, got %d", got)
	}
	if ledger.LastAccrualTime != 1050 {
		t.Fatalf("expected last accrual time 1050, got %d", ledger.LastAccrualTime)
	}
	if got := user.Positions[0].Pending.Int64(); got != 500 {
		t.Fatalf("expected pending 500, got %d", got)
	}
	if len(ledger.Streams) != 1 || ledger.Streams[0].StartTime != 1050 {
		t.Fatalf("expected stream re-based to 1050, got %+v", ledger.Streams)
	}
}

func TestAdvanceIdempotentAtSameTimestamp(t *testing.T) {
	asset := testAssetAddr(0xbb)
	pool := newTestPool(100, newTestLedger(asset, stream(1000, 10, 1000, 1100)))
	user := &UserAccount{Address: testUserAddr(0x02), Staked: big.NewInt(100)}
	rebaseDebts(pool, user)

	Advance(pool, user, 1050)
	accumulator := new(big.Int).Set(pool.RewardLedgers[0].Accumulator)
	pending := new(big.Int).Set(user.Positions[0].Pending)

	Advance(pool, user, 1050)

	if pool.RewardLedgers[0].Accumulator.Cmp(accumulator) != 0 {
		t.Fatalf("accumulator changed on re-advance: %s -> %s", accumulator, pool.RewardLedgers[0].Accumulator)
	}
	if user.Positions[0].Pending.Cmp(pending) != 0 {
		t.Fatalf("pending changed on re-advance: %s -> %s", pending, user.Positions[0].Pending)
	}
}

func TestAdvanceAccumulatorMonotonic(t *testing.T) {
	asset := testAssetAddr(0xbb)
	pool := newTestPool(100, newTestLedger(asset, stream(1000, 10, 1000, 1100)))
	user := &UserAccount{Address: testUserAddr(0x02), Staked: big.NewInt(100)}
	rebaseDebts(pool, user)

	previous := big.NewInt(0)
	for _, now := range []uint64{1010, 1010, 1025, 1060, 1100, 1200} {
		Advance(pool, user, now)
		acc := pool.RewardLedgers[0].Accumulator
		if acc.Cmp(previous) < 0 {
			t.Fatalf("accumulator decreased at t=%d: %s -> %s", now, previous, acc)
		}
		previous = new(big.Int).Set(acc)
	}
}

func TestAdvanceRemovesStreamAfterFullRelease(t *testing.T) {
	asset := testAssetAddr(0xbb)
	pool := newTestPool(100, newTestLedger(asset, stream(1000, 1, 0, 1000)))
	user := &UserAccount{Address: testUserAddr(0x02), Staked: big.NewInt(100)}
	rebaseDebts(pool, user)

	Advance(pool, user, 400)
	if len(pool.RewardLedgers[0].Streams) != 1 {
		t.Fatalf("stream removed before end time")
	}

	Advance(pool, user, 1000)
	ledger := pool.RewardLedgers[0]
	if len(ledger.Streams) != 0 {
		t.Fatalf("stream not removed at end time")
	}
	// 1000 units over 100 staked: full release lands in the accumulator.
	if got := ledger.Accumulator.Int64(); got != 10 {
		t.Fatalf("expected accumulator 10, got %d", got)
	}
	if got := user.Positions[0].Pending.Int64(); got != 1000 {
		t.Fatalf("expected full release of 1000 pending, got %d", got)
	}

	Advance(pool, user, 2000)
	if got := ledger.Accumulator.Int64(); got != 10 {
		t.Fatalf("accumulator moved after stream ended: %d", got)
	}
}

func TestAdvanceSkipsAndDropsSecondsWhileEmpty(t *testing.T) {
	asset := testAssetAddr(0xbb)
	ledger := newTestLedger(asset, stream(1000, 10, 1000, 1100))
	ledger.LastAccrualTime = 1000
	pool := newTestPool(0, ledger)

	Advance(pool, nil, 1050)

	if got := ledger.Accumulator.Int64(); got != 0 {
		t.Fatalf("accumulator advanced on empty pool: %d", got)
	}
	if ledger.LastAccrualTime != 1000 {
		t.Fatalf("last accrual time advanced on empty pool: %d", ledger.LastAccrualTime)
	}
	if ledger.Streams[0].StartTime != 1050 {
		t.Fatalf("empty-pool seconds not dropped, stream start %d", ledger.Streams[0].StartTime)
	}

	// A depositor arriving afterwards must not collect the dropped seconds.
	pool.TotalStaked = big.NewInt(100)
	user := &UserAccount{Address: testUserAddr(0x02), Staked: big.NewInt(100)}
	rebaseDebts(pool, user)
	Advance(pool, user, 1100)
	if got := user.Positions[0].Pending.Int64(); got != 500 {
		t.Fatalf("expected 500 pending for the occupied half of the stream, got %d", got)
	}
}

func TestSettleBackdatesNewPositions(t *testing.T) {
	asset := testAssetAddr(0xbb)
	ledger := newTestLedger(asset)
	ledger.Accumulator = big.NewInt(7)
	pool := newTestPool(100, ledger)

	late := &UserAccount{Address: testUserAddr(0x03), Staked: big.NewInt(50)}
	Advance(pool, late, 2000)

	pos := late.Positions[0]
	if got := pos.Debt.Int64(); got != 350 {
		t.Fatalf("expected debt back-dated to 350, got %d", got)
	}
	if got := pos.Pending.Int64(); got != 0 {
		t.Fatalf("expected zero pending for a fresh position, got %d", got)
	}
}

func TestRebaseDebtsAfterStakeChange(t *testing.T) {
	asset := testAssetAddr(0xbb)
	ledger := newTestLedger(asset, stream(800, 10, 0, 80))
	pool := newTestPool(100, ledger)
	user := &UserAccount{Address: testUserAddr(0x02), Staked: big.NewInt(100)}
	rebaseDebts(pool, user)

	Advance(pool, user, 80)
	if got := user.Positions[0].Pending.Int64(); got != 800 {
		t.Fatalf("expected 800 pending, got %d", got)
	}

	// Double the stake; rewards already earned must not change and no new
	// rewards may appear for the past.
	user.Staked = big.NewInt(200)
	pool.TotalStaked = big.NewInt(200)
	rebaseDebts(pool, user)

	Advance(pool, user, 200)
	if got := user.Positions[0].Pending.Int64(); got != 800 {
		t.Fatalf("pending changed after stake rebase with no new streams: %d", got)
	}
}

func TestAdvanceTruncationDust(t *testing.T) {
	asset := testAssetAddr(0xbb)
	// 7 units/second across 3 staked units: 70/3 = 23 per share, 1 unit dust.
	pool := newTestPool(3, newTestLedger(asset, stream(70, 7, 0, 10)))
	user := &UserAccount{Address: testUserAddr(0x02), Staked: big.NewInt(3)}
	rebaseDebts(pool, user)

	Advance(pool, user, 10)

	if got := pool.RewardLedgers[0].Accumulator.Int64(); got != 23 {
		t.Fatalf("expected truncated accumulator 23, got %d", got)
	}
	if got := user.Positions[0].Pending.Int64(); got != 69 {
		t.Fatalf("expected 69 pending after truncation, got %d", got)
	}
}
