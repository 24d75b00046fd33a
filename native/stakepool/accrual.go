package stakepool

import "math/big"

// Advance brings every reward ledger up to now and settles the user's reward
// positions against the advanced accumulators. It is invoked before every
// state-changing operation and before every pending-reward read. The supplied
// timestamp must be monotonically non-decreasing across calls; the host
// guarantees this. Calling Advance twice with the same timestamp is a no-op
// beyond the first call.
func Advance(pool *PoolState, user *UserAccount, now uint64) {
	if advanceLedgers(pool, now) {
		settleUser(pool, user)
	}
}

// advanceLedgers folds each stream's release since its last fold into the
// owning ledger's accumulator, drops fully released streams, and stamps the
// accrual time. It reports whether accrual ran.
//
// When nothing is staked the accumulators cannot advance (there is no stake to
// divide by). Streams are still re-based to now so the seconds elapsed while
// the pool sat empty are dropped rather than paid out retroactively to the
// next depositor.
func advanceLedgers(pool *PoolState, now uint64) bool {
	if pool == nil {
		return false
	}
	pool.normalize()
	if pool.TotalStaked.Sign() == 0 {
		for _, ledger := range pool.RewardLedgers {
			for i := range ledger.Streams {
				ledger.Streams[i].StartTime = streamCutoff(ledger.Streams[i], now)
			}
		}
		return false
	}

	for _, ledger := range pool.RewardLedgers {
		totalReleased := new(big.Int)
		retained := ledger.Streams[:0]
		for _, stream := range ledger.Streams {
			cutoff := streamCutoff(stream, now)
			if elapsed := cutoff - stream.StartTime; elapsed > 0 && stream.ReleaseRate != nil {
				released := new(big.Int).Mul(stream.ReleaseRate, new(big.Int).SetUint64(elapsed))
				totalReleased.Add(totalReleased, released)
			}
			// A stream leaves the ledger only once its full release through
			// EndTime has been folded in above.
			if now < stream.EndTime {
				stream.StartTime = cutoff
				retained = append(retained, stream)
			}
		}
		ledger.Streams = retained
		if totalReleased.Sign() > 0 {
			// Integer division truncates; the residual dust stays
			// undistributed.
			perShare := totalReleased.Quo(totalReleased, pool.TotalStaked)
			ledger.Accumulator = new(big.Int).Add(ledger.Accumulator, perShare)
		}
		ledger.LastAccrualTime = now
	}
	return true
}

// streamCutoff clamps now into the stream's active window.
func streamCutoff(stream RewardStream, now uint64) uint64 {
	cutoff := now
	if stream.EndTime < cutoff {
		cutoff = stream.EndTime
	}
	if cutoff < stream.StartTime {
		cutoff = stream.StartTime
	}
	return cutoff
}

// settleUser moves newly accrued rewards into each position's pending balance
// and records the settlement point. Positions are created lazily on first
// exposure with their debt back-dated to the current accumulator, so a
// first-time depositor cannot claim rewards accrued before they staked.
func settleUser(pool *PoolState, user *UserAccount) {
	if pool == nil || user == nil {
		return
	}
	user.normalize()
	for _, ledger := range pool.RewardLedgers {
		scaled := new(big.Int).Mul(user.Staked, ledger.Accumulator)
		pos := user.findPosition(ledger.Asset)
		if pos == nil {
			user.Positions = append(user.Positions, &UserRewardPosition{
				Asset:   ledger.Asset,
				Debt:    scaled,
				Pending: big.NewInt(0),
			})
			continue
		}
		owed := new(big.Int).Sub(scaled, pos.Debt)
		if owed.Sign() > 0 {
			pos.Pending = new(big.Int).Add(pos.Pending, owed)
		}
		pos.Debt = scaled
	}
}

// rebaseDebts re-anchors every reward position at the current accumulator
// scaled by the user's (just mutated) stake. Handlers call this after changing
// the staked amount so the stale debt cannot mint retroactive rewards or
// swallow earned ones. Missing positions are created in ledger order.
func rebaseDebts(pool *PoolState, user *UserAccount) {
	if pool == nil || user == nil {
		return
	}
	user.normalize()
	for _, ledger := range pool.RewardLedgers {
		scaled := new(big.Int).Mul(user.Staked, ledger.Accumulator)
		if pos := user.findPosition(ledger.Asset); pos != nil {
			pos.Debt = scaled
			continue
		}
		user.Positions = append(user.Positions, &UserRewardPosition{
			Asset:   ledger.Asset,
			Debt:    scaled,
			Pending: big.NewInt(0),
		})
	}
}
