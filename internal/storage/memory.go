package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is a mutex-guarded in-process store used when no database is
// configured and throughout the test suite. State does not survive restarts.
type Memory struct {
	mu    sync.Mutex
	plans map[uuid.UUID]Plan
	txs   map[uuid.UUID]Transaction
	byKey map[string]uuid.UUID
	locks map[int64]bool
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		plans: make(map[uuid.UUID]Plan),
		txs:   make(map[uuid.UUID]Transaction),
		byKey: make(map[string]uuid.UUID),
		locks: make(map[int64]bool),
	}
}

func (m *Memory) CreatePlan(_ context.Context, plan Plan) (Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if plan.Status == "" {
		plan.Status = PlanActive
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	m.plans[plan.ID] = plan
	return plan, nil
}

func (m *Memory) GetPlan(_ context.Context, id uuid.UUID) (Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

func (m *Memory) StopPlan(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[id]
	if !ok {
		return ErrPlanNotFound
	}
	if plan.Status == PlanActive {
		plan.Status = PlanStopped
		plan.UpdatedAt = time.Now().UTC()
		m.plans[id] = plan
	}
	return nil
}

func (m *Memory) AdvanceLastRun(_ context.Context, id uuid.UUID, ranAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[id]
	if !ok {
		return ErrPlanNotFound
	}
	plan.LastRun = &ranAt
	plan.UpdatedAt = time.Now().UTC()
	m.plans[id] = plan
	return nil
}

func (m *Memory) ListActivePlans(_ context.Context) ([]Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plans := make([]Plan, 0, len(m.plans))
	for _, plan := range m.plans {
		if plan.Status == PlanActive {
			plans = append(plans, plan)
		}
	}
	sortPlans(plans)
	return plans, nil
}

func (m *Memory) ListUserPlans(_ context.Context, userID string) ([]Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plans := make([]Plan, 0)
	for _, plan := range m.plans {
		if plan.UserID == userID {
			plans = append(plans, plan)
		}
	}
	sortPlans(plans)
	return plans, nil
}

func (m *Memory) AppendTransaction(_ context.Context, tx Transaction) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.byKey[tx.IdempotencyKey]; ok {
		return m.txs[existingID], nil
	}

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.Status == "" {
		tx.Status = TxPending
	}
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	m.txs[tx.ID] = tx
	m.byKey[tx.IdempotencyKey] = tx.ID
	return tx, nil
}

func (m *Memory) MarkTransactionCompleted(_ context.Context, id uuid.UUID, received decimal.Decimal, txHash, positionRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[id]
	if !ok || tx.Status != TxPending {
		return ErrTransactionNotFound
	}
	tx.Status = TxCompleted
	tx.Received = received
	tx.TxHash = txHash
	tx.PositionRef = positionRef
	tx.UpdatedAt = time.Now().UTC()
	m.txs[id] = tx
	return nil
}

func (m *Memory) MarkTransactionFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[id]
	if !ok || tx.Status != TxPending {
		return ErrTransactionNotFound
	}
	tx.Status = TxFailed
	tx.Error = &errMsg
	tx.UpdatedAt = time.Now().UTC()
	m.txs[id] = tx
	return nil
}

func (m *Memory) RetryTransaction(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[id]
	if !ok || tx.Status != TxFailed {
		return ErrTransactionNotFound
	}
	tx.Status = TxPending
	tx.Error = nil
	tx.UpdatedAt = time.Now().UTC()
	m.txs[id] = tx
	return nil
}

func (m *Memory) ListPlanTransactions(_ context.Context, planID uuid.UUID, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txs := make([]Transaction, 0)
	for _, tx := range m.txs {
		if tx.PlanID == planID {
			txs = append(txs, tx)
		}
	}
	sortTransactions(txs)
	return truncate(txs, limit), nil
}

func (m *Memory) ListRecentTransactions(_ context.Context, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txs := make([]Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		txs = append(txs, tx)
	}
	sortTransactions(txs)
	return truncate(txs, limit), nil
}

func (m *Memory) SumCompletedConverts(_ context.Context, userID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := decimal.Zero
	for _, tx := range m.txs {
		if tx.Phase != PhaseConvert || tx.Status != TxCompleted {
			continue
		}
		plan, ok := m.plans[tx.PlanID]
		if !ok || plan.UserID != userID {
			continue
		}
		total = total.Add(tx.Amount)
	}
	return total, nil
}

func (m *Memory) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[key] {
		return nil, false, nil
	}
	m.locks[key] = true

	unlock := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locks, key)
	}
	return unlock, true, nil
}

func sortPlans(plans []Plan) {
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].CreatedAt.Before(plans[j].CreatedAt)
	})
}

func sortTransactions(txs []Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

func truncate(txs []Transaction, limit int) []Transaction {
	if limit > 0 && len(txs) > limit {
		return txs[:limit]
	}
	return txs
}

var (
	_ PlanStore      = (*Memory)(nil)
	_ LedgerStore    = (*Memory)(nil)
	_ AdvisoryLocker = (*Memory)(nil)
)
