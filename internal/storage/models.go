package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanStatus tracks whether a plan is still eligible for execution.
type PlanStatus string

const (
	PlanActive  PlanStatus = "active"
	PlanStopped PlanStatus = "stopped"
)

// FrequencyUnit is the unit a plan's interval is expressed in.
type FrequencyUnit string

const (
	UnitMinute FrequencyUnit = "minute"
	UnitHour   FrequencyUnit = "hour"
	UnitDay    FrequencyUnit = "day"
	UnitWeek   FrequencyUnit = "week"
)

// Duration converts the unit to its wall-clock length.
func (u FrequencyUnit) Duration() time.Duration {
	switch u {
	case UnitMinute:
		return time.Minute
	case UnitHour:
		return time.Hour
	case UnitDay:
		return 24 * time.Hour
	case UnitWeek:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the unit is one of the supported values.
func (u FrequencyUnit) Valid() bool {
	return u.Duration() > 0
}

// TxPhase identifies the stage of a trade a ledger row belongs to.
type TxPhase string

const (
	PhaseConvert TxPhase = "convert"
	PhaseDeposit TxPhase = "deposit"
)

// TxStatus is the lifecycle state of a ledger row.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

// Plan is a recurring investment instruction for one user.
type Plan struct {
	ID          uuid.UUID       `json:"id"`
	UserID      string          `json:"user_id"`
	AssetID     string          `json:"asset_id"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Risk        string          `json:"risk"`
	Every       int             `json:"every"`
	Unit        FrequencyUnit   `json:"unit"`
	AutoDeposit bool            `json:"auto_deposit"`
	Status      PlanStatus      `json:"status"`
	LastRun     *time.Time      `json:"last_run,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Interval is the spacing between scheduled runs.
func (p Plan) Interval() time.Duration {
	return time.Duration(p.Every) * p.Unit.Duration()
}

// Due reports whether the plan should execute at the given instant. A plan
// that has never run is anchored at its creation time.
func (p Plan) Due(now time.Time) bool {
	if p.Status != PlanActive {
		return false
	}
	interval := p.Interval()
	if interval <= 0 {
		return false
	}
	anchor := p.CreatedAt
	if p.LastRun != nil {
		anchor = *p.LastRun
	}
	return !now.Before(anchor.Add(interval))
}

// RunIndex numbers the schedule slot the given instant falls into, counted
// from the plan's creation. Retries inside one slot share an index.
func (p Plan) RunIndex(now time.Time) int64 {
	interval := p.Interval()
	if interval <= 0 || now.Before(p.CreatedAt) {
		return 0
	}
	return int64(now.Sub(p.CreatedAt) / interval)
}

// Transaction is one ledger row covering a single phase of a trade.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	PlanID         uuid.UUID       `json:"plan_id"`
	Phase          TxPhase         `json:"phase"`
	Status         TxStatus        `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	Received       decimal.Decimal `json:"received"`
	TxHash         string          `json:"tx_hash,omitempty"`
	PositionRef    string          `json:"position_ref,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Error          *string         `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
