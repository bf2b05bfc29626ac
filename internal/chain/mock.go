package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"driftbuy/internal/market"
)

// AssetStable and AssetTarget name the two balances the mock tracks per
// address.
const (
	AssetStable = "stable"
	AssetTarget = "target"
)

type mockAccount struct {
	stable decimal.Decimal
	target decimal.Decimal
}

// Mock is a deterministic in-memory executor for tests and for environments
// without chain credentials. Unknown addresses are seeded with a starting
// balance on first touch.
type Mock struct {
	mu       sync.Mutex
	accounts map[string]*mockAccount
	deposits map[string]decimal.Decimal
	seq      int
	rate     decimal.Decimal

	// ConvertErr and DepositErr, when set, fail the corresponding operation.
	ConvertErr error
	DepositErr error
}

// NewMock constructs a mock executor converting at a fixed 1 stable = 0.1
// target rate.
func NewMock() *Mock {
	return &Mock{
		accounts: make(map[string]*mockAccount),
		deposits: make(map[string]decimal.Decimal),
		rate:     decimal.RequireFromString("0.1"),
	}
}

// SetRate overrides the fixed conversion rate.
func (m *Mock) SetRate(rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = rate
}

// SetBalance pins an address's balance for one asset.
func (m *Mock) SetBalance(address, asset string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct := m.account(address)
	if asset == AssetTarget {
		acct.target = amount
		return
	}
	acct.stable = amount
}

// Convert debits the stable balance and credits the target balance at the
// fixed rate, returning a synthetic hash.
func (m *Mock) Convert(_ context.Context, amount decimal.Decimal, destination string) (ConvertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ConvertErr != nil {
		return ConvertResult{}, execErr("convert", m.ConvertErr)
	}
	if amount.Sign() <= 0 {
		return ConvertResult{}, execErr("convert", fmt.Errorf("amount must be positive, got %s", amount))
	}

	acct := m.account(destination)
	if acct.stable.LessThan(amount) {
		return ConvertResult{}, execErr("convert", ErrInsufficientBalance)
	}

	received := amount.Mul(m.rate)
	acct.stable = acct.stable.Sub(amount)
	acct.target = acct.target.Add(received)

	return ConvertResult{TxHash: m.nextHash(), Received: received}, nil
}

// Deposit records the amount under a synthetic position reference.
func (m *Mock) Deposit(_ context.Context, amount decimal.Decimal, mk market.Market) (DepositResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DepositErr != nil {
		return DepositResult{}, execErr("deposit", m.DepositErr)
	}
	if amount.Sign() <= 0 {
		return DepositResult{}, execErr("deposit", fmt.Errorf("amount must be positive, got %s", amount))
	}

	m.seq++
	ref := fmt.Sprintf("pos-%d", m.seq)
	m.deposits[ref] = amount

	return DepositResult{TxHash: m.nextHash(), PositionRef: ref}, nil
}

// Withdraw releases a recorded position, partially or in full.
func (m *Mock) Withdraw(_ context.Context, amount decimal.Decimal, positionRef string, _ market.Market) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.deposits[positionRef]
	if !ok {
		return "", execErr("withdraw", fmt.Errorf("unknown position %q", positionRef))
	}
	if held.LessThan(amount) {
		return "", execErr("withdraw", ErrInsufficientBalance)
	}

	remaining := held.Sub(amount)
	if remaining.Sign() == 0 {
		delete(m.deposits, positionRef)
	} else {
		m.deposits[positionRef] = remaining
	}

	return m.nextHash(), nil
}

// Balance reports the tracked balance for an address.
func (m *Mock) Balance(_ context.Context, address, asset string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct := m.account(address)
	if asset == AssetTarget {
		return acct.target, nil
	}
	return acct.stable, nil
}

// Deposited returns the total amount held across positions.
func (m *Mock) Deposited() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := decimal.Zero
	for _, amount := range m.deposits {
		total = total.Add(amount)
	}
	return total
}

func (m *Mock) account(address string) *mockAccount {
	acct, ok := m.accounts[address]
	if !ok {
		acct = &mockAccount{
			stable: decimal.NewFromInt(1000),
			target: decimal.NewFromInt(100),
		}
		m.accounts[address] = acct
	}
	return acct
}

func (m *Mock) nextHash() string {
	m.seq++
	return fmt.Sprintf("mock-tx-%d-%06d", time.Now().UnixMilli(), m.seq)
}

var _ Executor = (*Mock)(nil)
