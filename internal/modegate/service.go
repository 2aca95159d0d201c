package modegate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/model"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// LiveConfirmationPhrase must be typed verbatim to enter live mode.
const LiveConfirmationPhrase = "I understand that live trading uses real funds"

// DB is the storage handle the gate runs on. *pgxpool.Pool satisfies it.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service is the paper/live gate. Entering LIVE requires, in order, an
// elevated caller, the exact confirmation phrase, a fresh anti-forgery
// token, and headroom in the sliding rate window. Leaving LIVE is always
// allowed. Every attempt, pass or fail, lands in the audit table; the rate
// window is counted over that same table so failed attempts consume quota
// and the limit survives restarts.
type Service struct {
	pool   DB
	tokens *TokenIssuer
	limit  int
	window time.Duration
	log    *logrus.Entry
}

func NewService(pool DB, tokens *TokenIssuer, limit int, window time.Duration, log *logrus.Logger) *Service {
	return &Service{
		pool:   pool,
		tokens: tokens,
		limit:  limit,
		window: window,
		log:    log.WithField("component", "modegate"),
	}
}

// Current returns the user's mode, creating the default PAPER row on first
// read.
func (s *Service) Current(ctx context.Context, userID string) (model.ModeState, error) {
	var st model.ModeState
	var mode string
	err := s.pool.QueryRow(ctx,
		"select user_id, mode, switched_at, updated_at from mode_state where user_id = $1",
		userID).Scan(&st.UserID, &mode, &st.SwitchedAt, &st.UpdatedAt)
	if err == nil {
		st.Mode = types.TradingMode(mode)
		return st, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return st, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		insert into mode_state (user_id, mode, switched_at, updated_at)
		values ($1, $2, $3, $3)
		on conflict (user_id) do nothing`, userID, string(types.ModePaper), now)
	if err != nil {
		return st, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	return model.ModeState{UserID: userID, Mode: types.ModePaper, SwitchedAt: now, UpdatedAt: now}, nil
}

// IssueToken mints a fresh anti-forgery token for the user's session.
func (s *Service) IssueToken(userID string) string {
	return s.tokens.Issue(userID)
}

type SwitchRequest struct {
	UserID       string
	Actor        string
	Origin       string
	Target       types.TradingMode
	Confirmation string
	Token        string
}

func (s *Service) audit(ctx context.Context, tx pgx.Tx, req SwitchRequest, outcome types.AuditOutcome, detail string) error {
	_, err := tx.Exec(ctx, `
		insert into mode_audit (id, user_id, actor, origin, target_mode, outcome, detail, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), req.UserID, req.Actor, req.Origin, string(req.Target), string(outcome), detail, time.Now().UTC())
	return err
}

// deny records the failed attempt, commits the audit row, and returns the
// gate error. The audit write must survive even though the switch did not.
func (s *Service) deny(ctx context.Context, tx pgx.Tx, req SwitchRequest, outcome types.AuditOutcome, detail string, cause error) error {
	if err := s.audit(ctx, tx, req, outcome, detail); err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	s.log.WithFields(logrus.Fields{
		"user_id": req.UserID,
		"target":  req.Target,
		"outcome": outcome,
	}).Warn("mode switch denied")
	return cause
}

func (s *Service) elevated(ctx context.Context, tx pgx.Tx, userID string) (bool, error) {
	var elevated bool
	err := tx.QueryRow(ctx, "select elevated from users where id = $1", userID).Scan(&elevated)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return elevated, err
}

func (s *Service) attemptsInWindow(ctx context.Context, tx pgx.Tx, userID string) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		select count(*) from mode_audit
		where user_id = $1 and target_mode = $2 and created_at > now() - make_interval(secs => $3)`,
		userID, string(types.ModeLive), s.window.Seconds()).Scan(&n)
	return n, err
}

// Switch applies one mode-switch attempt and returns the resulting state.
func (s *Service) Switch(ctx context.Context, req SwitchRequest) (model.ModeState, error) {
	if req.Target != types.ModePaper && req.Target != types.ModeLive {
		return model.ModeState{}, fmt.Errorf("%w: unknown mode %q", traderr.ErrInvalidOrder, req.Target)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.ModeState{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	defer tx.Rollback(ctx)

	if req.Target == types.ModeLive {
		ok, err := s.elevated(ctx, tx, req.UserID)
		if err != nil {
			return model.ModeState{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
		}
		if !ok {
			return model.ModeState{}, s.deny(ctx, tx, req, types.AuditOutcomeForbidden, "caller not elevated",
				fmt.Errorf("%w: live trading requires elevated privileges", traderr.ErrForbidden))
		}
		if req.Confirmation != LiveConfirmationPhrase {
			return model.ModeState{}, s.deny(ctx, tx, req, types.AuditOutcomeMismatch, "confirmation phrase mismatch",
				fmt.Errorf("%w: confirmation phrase does not match", traderr.ErrConfirmationMismatch))
		}
		if err := s.tokens.Verify(req.UserID, req.Token); err != nil {
			return model.ModeState{}, s.deny(ctx, tx, req, types.AuditOutcomeInvalidToken, err.Error(),
				fmt.Errorf("%w: %v", traderr.ErrForbidden, err))
		}
		attempts, err := s.attemptsInWindow(ctx, tx, req.UserID)
		if err != nil {
			return model.ModeState{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
		}
		if attempts >= s.limit {
			return model.ModeState{}, s.deny(ctx, tx, req, types.AuditOutcomeRateLimited,
				fmt.Sprintf("%d attempts in window", attempts),
				fmt.Errorf("%w: too many switch attempts", traderr.ErrRateLimited))
		}
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		insert into mode_state (user_id, mode, switched_at, updated_at)
		values ($1, $2, $3, $3)
		on conflict (user_id) do update set mode = $2, switched_at = $3, updated_at = $3`,
		req.UserID, string(req.Target), now)
	if err != nil {
		return model.ModeState{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if err := s.audit(ctx, tx, req, types.AuditOutcomeSwitched, ""); err != nil {
		return model.ModeState{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.ModeState{}, fmt.Errorf("%w: %v", traderr.ErrStorageFailure, err)
	}
	s.log.WithFields(logrus.Fields{"user_id": req.UserID, "mode": req.Target}).Info("mode switched")
	return model.ModeState{UserID: req.UserID, Mode: req.Target, SwitchedAt: now, UpdatedAt: now}, nil
}

// AuditTrail returns the user's switch attempts, newest first.
func (s *Service) AuditTrail(ctx context.Context, userID string, limit int) ([]model.ModeAuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		select id, user_id, actor, origin, target_mode, outcome, detail, created_at
		from mode_audit
		where user_id = $1
		order by created_at desc
		limit $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ModeAuditRecord
	for rows.Next() {
		var r model.ModeAuditRecord
		var target, outcome string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Actor, &r.Origin, &target, &outcome, &r.Detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.TargetMode = types.TradingMode(target)
		r.Outcome = types.AuditOutcome(outcome)
		out = append(out, r)
	}
	return out, rows.Err()
}
