// Package replica reads the claims CRM replica. The replica is owned by an
// external system; this package exposes query methods only and nothing in
// the module holds a writable handle to it.
package replica

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/phone"
)

// User is an identity record mirrored from the CRM
type User struct {
	ID          int64
	FirstName   string
	LastName    string
	PhoneNumber string
	Email       string
	IsEnabled   bool
	CreatedAt   time.Time
}

// Claim belongs to exactly one User
type Claim struct {
	ID        int64
	UserID    int64
	Type      string
	Status    string
	Lender    string
	CreatedAt time.Time
}

// Requirement is an outstanding item on a claim
type Requirement struct {
	ID        int64
	ClaimID   int64
	Type      string
	Status    string
	Reason    string
	CreatedAt time.Time
}

// Store is the read-only boundary. There are deliberately no mutation
// methods here; write paths cannot target the replica at the type level.
type Store interface {
	FindEnabledUserByPhone(ctx context.Context, rawPhone string) (*User, error)
	OpenClaims(ctx context.Context, userID int64, limit int) ([]Claim, error)
	PendingRequirements(ctx context.Context, claimID int64, limit int) ([]Requirement, error)
	ClaimByID(ctx context.Context, claimID int64) (*Claim, error)
}

// PG implements Store against the Postgres replica
type PG struct {
	pool *pgxpool.Pool
}

// Connect opens the replica pool and verifies connectivity
func Connect(ctx context.Context, databaseURL string) (*PG, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid replica database URL: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create replica pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("replica ping failed: %w", err)
	}

	logger.Log.Info("Replica connection established")
	return &PG{pool: pool}, nil
}

func (p *PG) Close() {
	p.pool.Close()
}

func (p *PG) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// FindEnabledUserByPhone matches a raw caller number against the replica
// using every plausible stored representation. Only enabled users match.
func (p *PG) FindEnabledUserByPhone(ctx context.Context, rawPhone string) (*User, error) {
	variants := phone.Variants(rawPhone)

	const q = `
SELECT id, first_name, last_name, phone_number, COALESCE(email, ''), is_enabled, created_at
FROM users
WHERE is_enabled = true AND phone_number = ANY($1)
LIMIT 1
`
	var u User
	err := p.pool.QueryRow(ctx, q, variants).Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.PhoneNumber,
		&u.Email,
		&u.IsEnabled,
		&u.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// OpenClaims returns up to limit non-complete claims, newest first
func (p *PG) OpenClaims(ctx context.Context, userID int64, limit int) ([]Claim, error) {
	const q = `
SELECT id, user_id, type, status, COALESCE(lender, ''), created_at
FROM claims
WHERE user_id = $1 AND status <> 'complete'
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := p.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		var c Claim
		if err := rows.Scan(&c.ID, &c.UserID, &c.Type, &c.Status, &c.Lender, &c.CreatedAt); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// PendingRequirements returns up to limit PENDING requirements for a claim
func (p *PG) PendingRequirements(ctx context.Context, claimID int64, limit int) ([]Requirement, error) {
	const q = `
SELECT id, claim_id, type, status, COALESCE(reason, ''), created_at
FROM claim_requirements
WHERE claim_id = $1 AND status = 'PENDING'
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := p.pool.Query(ctx, q, claimID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []Requirement
	for rows.Next() {
		var r Requirement
		if err := rows.Scan(&r.ID, &r.ClaimID, &r.Type, &r.Status, &r.Reason, &r.CreatedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// ClaimByID fetches a single claim
func (p *PG) ClaimByID(ctx context.Context, claimID int64) (*Claim, error) {
	const q = `
SELECT id, user_id, type, status, COALESCE(lender, ''), created_at
FROM claims
WHERE id = $1
`
	var c Claim
	err := p.pool.QueryRow(ctx, q, claimID).Scan(&c.ID, &c.UserID, &c.Type, &c.Status, &c.Lender, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// logging helper used by callers that degrade replica failures to NotFound
func LogDegraded(op string, err error) {
	logger.Log.Warn("Replica query degraded to not-found",
		zap.String("op", op),
		zap.Error(err),
	)
}
