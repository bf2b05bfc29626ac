package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")

	// ErrPlanNotFound indicates the requested plan does not exist.
	ErrPlanNotFound = errors.New("storage: plan not found")

	// ErrTransactionNotFound indicates no pending ledger row matched.
	ErrTransactionNotFound = errors.New("storage: transaction not found")
)

const (
	planColumns = `id, user_id, asset_id, destination, amount, risk, every, unit,
        auto_deposit, status, last_run, created_at, updated_at`

	txColumns = `id, plan_id, phase, status, amount, received, tx_hash,
        position_ref, idempotency_key, error, created_at, updated_at`

	insertPlanSQL = `INSERT INTO plans (
        id, user_id, asset_id, destination, amount, risk, every, unit,
        auto_deposit, status, last_run
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    ) RETURNING ` + planColumns + `;`

	getPlanSQL = `SELECT ` + planColumns + ` FROM plans WHERE id = $1;`

	stopPlanSQL = `UPDATE plans
    SET status = 'stopped', updated_at = now()
    WHERE id = $1 AND status = 'active';`

	advanceLastRunSQL = `UPDATE plans
    SET last_run = $2, updated_at = now()
    WHERE id = $1;`

	listActivePlansSQL = `SELECT ` + planColumns + `
    FROM plans
    WHERE status = 'active'
    ORDER BY created_at;`

	listUserPlansSQL = `SELECT ` + planColumns + `
    FROM plans
    WHERE user_id = $1
    ORDER BY created_at;`

	appendTransactionSQL = `INSERT INTO transactions (
        id, plan_id, phase, status, amount, received, tx_hash,
        position_ref, idempotency_key, error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (idempotency_key) DO NOTHING
    RETURNING ` + txColumns + `;`

	getTransactionByKeySQL = `SELECT ` + txColumns + `
    FROM transactions
    WHERE idempotency_key = $1;`

	markTransactionCompletedSQL = `UPDATE transactions
    SET status = 'completed', received = $2, tx_hash = $3, position_ref = $4,
        updated_at = now()
    WHERE id = $1 AND status = 'pending';`

	markTransactionFailedSQL = `UPDATE transactions
    SET status = 'failed', error = $2, updated_at = now()
    WHERE id = $1 AND status = 'pending';`

	retryTransactionSQL = `UPDATE transactions
    SET status = 'pending', error = NULL, updated_at = now()
    WHERE id = $1 AND status = 'failed';`

	listPlanTransactionsSQL = `SELECT ` + txColumns + `
    FROM transactions
    WHERE plan_id = $1
    ORDER BY created_at DESC
    LIMIT $2;`

	listRecentTransactionsSQL = `SELECT ` + txColumns + `
    FROM transactions
    ORDER BY created_at DESC
    LIMIT $1;`

	sumCompletedConvertsSQL = `SELECT COALESCE(SUM(t.amount), 0)
    FROM transactions t
    JOIN plans p ON p.id = t.plan_id
    WHERE p.user_id = $1
      AND t.phase = 'convert'
      AND t.status = 'completed';`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PlanStore defines operations for plan persistence.
type PlanStore interface {
	CreatePlan(ctx context.Context, plan Plan) (Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (Plan, error)
	StopPlan(ctx context.Context, id uuid.UUID) error
	AdvanceLastRun(ctx context.Context, id uuid.UUID, ranAt time.Time) error
	ListActivePlans(ctx context.Context) ([]Plan, error)
	ListUserPlans(ctx context.Context, userID string) ([]Plan, error)
}

// LedgerStore defines operations for the transaction ledger.
type LedgerStore interface {
	// AppendTransaction inserts the row unless its idempotency key already
	// exists, in which case the stored row is returned unchanged.
	AppendTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	MarkTransactionCompleted(ctx context.Context, id uuid.UUID, received decimal.Decimal, txHash, positionRef string) error
	MarkTransactionFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	// RetryTransaction moves a failed row back to pending for another attempt.
	RetryTransaction(ctx context.Context, id uuid.UUID) error
	ListPlanTransactions(ctx context.Context, planID uuid.UUID, limit int) ([]Transaction, error)
	ListRecentTransactions(ctx context.Context, limit int) ([]Transaction, error)
	SumCompletedConverts(ctx context.Context, userID string) (decimal.Decimal, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to plans and the transaction ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// CreatePlan persists a new plan and returns the stored row.
func (s *Store) CreatePlan(ctx context.Context, plan Plan) (Plan, error) {
	pool, err := s.getPool()
	if err != nil {
		return Plan{}, err
	}

	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if plan.Status == "" {
		plan.Status = PlanActive
	}

	row := pool.QueryRow(ctx, insertPlanSQL,
		plan.ID,
		plan.UserID,
		plan.AssetID,
		plan.Destination,
		plan.Amount.String(),
		plan.Risk,
		plan.Every,
		string(plan.Unit),
		plan.AutoDeposit,
		string(plan.Status),
		plan.LastRun,
	)

	stored, err := scanPlan(row)
	if err != nil {
		return Plan{}, fmt.Errorf("insert plan: %w", err)
	}
	return stored, nil
}

// GetPlan fetches a plan by identifier.
func (s *Store) GetPlan(ctx context.Context, id uuid.UUID) (Plan, error) {
	pool, err := s.getPool()
	if err != nil {
		return Plan{}, err
	}

	plan, scanErr := scanPlan(pool.QueryRow(ctx, getPlanSQL, id))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Plan{}, ErrPlanNotFound
		}
		return Plan{}, fmt.Errorf("get plan: %w", scanErr)
	}
	return plan, nil
}

// StopPlan marks an active plan stopped. Stopping an already stopped plan is
// not an error.
func (s *Store) StopPlan(ctx context.Context, id uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, stopPlanSQL, id); execErr != nil {
		return fmt.Errorf("stop plan: %w", execErr)
	}
	return nil
}

// AdvanceLastRun records the instant a plan last executed.
func (s *Store) AdvanceLastRun(ctx context.Context, id uuid.UUID, ranAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, advanceLastRunSQL, id, ranAt)
	if execErr != nil {
		return fmt.Errorf("advance last run: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// ListActivePlans lists plans eligible for scheduling.
func (s *Store) ListActivePlans(ctx context.Context) ([]Plan, error) {
	return s.listPlans(ctx, listActivePlansSQL)
}

// ListUserPlans lists all plans owned by a user, stopped included.
func (s *Store) ListUserPlans(ctx context.Context, userID string) ([]Plan, error) {
	return s.listPlans(ctx, listUserPlansSQL, userID)
}

func (s *Store) listPlans(ctx context.Context, query string, args ...interface{}) ([]Plan, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list plans: %w", queryErr)
	}
	defer rows.Close()

	plans := make([]Plan, 0)
	for rows.Next() {
		plan, scanErr := scanPlan(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		plans = append(plans, plan)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return plans, nil
}

// AppendTransaction inserts a ledger row or returns the existing row for the
// same idempotency key.
func (s *Store) AppendTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	pool, err := s.getPool()
	if err != nil {
		return Transaction{}, err
	}

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.Status == "" {
		tx.Status = TxPending
	}

	var errMsg interface{}
	if tx.Error != nil {
		errMsg = *tx.Error
	}

	row := pool.QueryRow(ctx, appendTransactionSQL,
		tx.ID,
		tx.PlanID,
		string(tx.Phase),
		string(tx.Status),
		tx.Amount.String(),
		tx.Received.String(),
		tx.TxHash,
		tx.PositionRef,
		tx.IdempotencyKey,
		errMsg,
	)

	stored, scanErr := scanTransaction(row)
	if scanErr == nil {
		return stored, nil
	}
	if !errors.Is(scanErr, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("append transaction: %w", scanErr)
	}

	// Conflict path: another run already claimed this key.
	existing, getErr := scanTransaction(pool.QueryRow(ctx, getTransactionByKeySQL, tx.IdempotencyKey))
	if getErr != nil {
		return Transaction{}, fmt.Errorf("fetch existing transaction: %w", getErr)
	}
	return existing, nil
}

// MarkTransactionCompleted finalises a pending ledger row with its outcome.
func (s *Store) MarkTransactionCompleted(ctx context.Context, id uuid.UUID, received decimal.Decimal, txHash, positionRef string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markTransactionCompletedSQL, id, received.String(), txHash, positionRef)
	if execErr != nil {
		return fmt.Errorf("mark transaction completed: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// MarkTransactionFailed records a failure on a pending ledger row.
func (s *Store) MarkTransactionFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markTransactionFailedSQL, id, errMsg)
	if execErr != nil {
		return fmt.Errorf("mark transaction failed: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// RetryTransaction re-arms a failed ledger row for another attempt.
func (s *Store) RetryTransaction(ctx context.Context, id uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, retryTransactionSQL, id)
	if execErr != nil {
		return fmt.Errorf("retry transaction: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ListPlanTransactions lists a plan's ledger rows, newest first.
func (s *Store) ListPlanTransactions(ctx context.Context, planID uuid.UUID, limit int) ([]Transaction, error) {
	return s.listTransactions(ctx, listPlanTransactionsSQL, planID, limit)
}

// ListRecentTransactions lists the most recent ledger rows across all plans.
func (s *Store) ListRecentTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	return s.listTransactions(ctx, listRecentTransactionsSQL, limit)
}

func (s *Store) listTransactions(ctx context.Context, query string, args ...interface{}) ([]Transaction, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list transactions: %w", queryErr)
	}
	defer rows.Close()

	txs := make([]Transaction, 0)
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		txs = append(txs, tx)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return txs, nil
}

// SumCompletedConverts totals the stable amount a user has invested across
// completed conversions.
func (s *Store) SumCompletedConverts(ctx context.Context, userID string) (decimal.Decimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return decimal.Decimal{}, err
	}

	var totalStr string
	if scanErr := pool.QueryRow(ctx, sumCompletedConvertsSQL, userID).Scan(&totalStr); scanErr != nil {
		return decimal.Decimal{}, fmt.Errorf("sum completed converts: %w", scanErr)
	}
	total, convErr := decimal.NewFromString(totalStr)
	if convErr != nil {
		return decimal.Decimal{}, fmt.Errorf("parse invested total: %w", convErr)
	}
	return total, nil
}

func scanPlan(row pgx.Row) (Plan, error) {
	var (
		plan      Plan
		amountStr string
		unit      string
		status    string
	)

	if err := row.Scan(
		&plan.ID,
		&plan.UserID,
		&plan.AssetID,
		&plan.Destination,
		&amountStr,
		&plan.Risk,
		&plan.Every,
		&unit,
		&plan.AutoDeposit,
		&status,
		&plan.LastRun,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	); err != nil {
		return Plan{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Plan{}, fmt.Errorf("parse plan amount: %w", err)
	}
	plan.Amount = amount
	plan.Unit = FrequencyUnit(unit)
	plan.Status = PlanStatus(status)
	return plan, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx          Transaction
		amountStr   string
		receivedStr string
		phase       string
		status      string
		errMsg      *string
	)

	if err := row.Scan(
		&tx.ID,
		&tx.PlanID,
		&phase,
		&status,
		&amountStr,
		&receivedStr,
		&tx.TxHash,
		&tx.PositionRef,
		&tx.IdempotencyKey,
		&errMsg,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		return Transaction{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse transaction amount: %w", err)
	}
	received, err := decimal.NewFromString(receivedStr)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse received amount: %w", err)
	}

	tx.Amount = amount
	tx.Received = received
	tx.Phase = TxPhase(phase)
	tx.Status = TxStatus(status)
	tx.Error = errMsg
	return tx, nil
}

var (
	_ PlanStore      = (*Store)(nil)
	_ LedgerStore    = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
