package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountReserveAndRelease(t *testing.T) {
	acct := NewAccount(10000)

	require.NoError(t, acct.Reserve(3000, 3, 50))
	assert.InDelta(t, 3000, acct.OpenNotional(), 1e-9)

	// Second reservation would push total past the 50% cap.
	err := acct.Reserve(2500, 3, 50)
	assert.ErrorIs(t, err, ErrExposureLimitExceeded)

	acct.Release(3000)
	assert.Zero(t, acct.OpenNotional())
	require.NoError(t, acct.Reserve(2500, 3, 50))
}

func TestAccountReserveMaxPositions(t *testing.T) {
	acct := NewAccount(10000)
	require.NoError(t, acct.Reserve(100, 2, 100))
	require.NoError(t, acct.Reserve(100, 2, 100))
	assert.ErrorIs(t, acct.Reserve(100, 2, 100), ErrMaxPositionsReached)
}

func TestAccountReserveInsufficientCapital(t *testing.T) {
	acct := NewAccount(1000)
	assert.ErrorIs(t, acct.Reserve(1500, 3, 200), ErrInsufficientCapital)
}

func TestAccountStreakTracking(t *testing.T) {
	acct := NewAccount(10000)

	acct.ApplyTrade(-50)
	acct.ApplyTrade(-50)
	assert.Equal(t, 2, acct.ConsecutiveLosses())

	// A win resets the streak.
	acct.ApplyTrade(200)
	assert.Zero(t, acct.ConsecutiveLosses())

	snap := acct.Snapshot()
	assert.Equal(t, 3, snap.TotalTrades)
	assert.Equal(t, 1, snap.WinningTrades)
	assert.Equal(t, 2, snap.LosingTrades)
	assert.InDelta(t, 10100, snap.Capital, 1e-9)
}

func TestAccountDrawdownFromPeak(t *testing.T) {
	acct := NewAccount(10000)

	acct.ApplyTrade(2000) // peak 12000
	acct.ApplyTrade(-3000)

	assert.InDelta(t, 25, acct.DrawdownPct(), 1e-9)

	// Peak only moves up.
	acct.ApplyTrade(500)
	assert.InDelta(t, 12000, acct.Snapshot().PeakCapital, 1e-9)
}

func TestAccountHaltIsSticky(t *testing.T) {
	acct := NewAccount(10000)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	acct.Halt("max drawdown exceeded", at)
	assert.True(t, acct.Halted())
	assert.ErrorIs(t, acct.Reserve(100, 3, 100), ErrTradingHalted)

	// Winning trades do not clear the halt.
	acct.ApplyTrade(5000)
	assert.True(t, acct.Halted())

	// A second Halt keeps the first reason.
	acct.Halt("other", at.Add(time.Hour))
	assert.Equal(t, "max drawdown exceeded", acct.Snapshot().HaltReason)

	acct.ResetHalt()
	assert.False(t, acct.Halted())
	assert.NoError(t, acct.Reserve(100, 3, 100))
}

func TestAccountDebitFees(t *testing.T) {
	acct := NewAccount(10000)
	acct.DebitFees(10)
	assert.InDelta(t, 9990, acct.Capital(), 1e-9)
	assert.Zero(t, acct.Snapshot().TotalTrades)
}
