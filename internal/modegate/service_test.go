package modegate

import (
	"context"
	"testing"
	"time"

	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/traderr"
	"github.com/shingo25/advanced-crypto-trading-bot-sub000/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gateFixture(t *testing.T, limit int) (pgxmock.PgxPoolIface, *Service, *TokenIssuer) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	tokens := NewTokenIssuer("gate-secret", 5*time.Minute)
	svc := NewService(mock, tokens, limit, time.Hour, logrus.New())
	return mock, svc, tokens
}

func liveRequest(token string) SwitchRequest {
	return SwitchRequest{
		UserID:       "u1",
		Actor:        "u1",
		Origin:       "web",
		Target:       types.ModeLive,
		Confirmation: LiveConfirmationPhrase,
		Token:        token,
	}
}

func expectBegin(mock pgxmock.PgxPoolIface) {
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
}

func expectElevated(mock pgxmock.PgxPoolIface, elevated bool) {
	mock.ExpectQuery("select elevated from users").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"elevated"}).AddRow(elevated))
}

func expectAudit(mock pgxmock.PgxPoolIface, outcome types.AuditOutcome) {
	mock.ExpectExec("insert into mode_audit").
		WithArgs(pgxmock.AnyArg(), "u1", "u1", "web", string(types.ModeLive),
			string(outcome), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

// With three attempts already in the window and a limit of three, the fourth
// switch is refused even though the caller is elevated, typed the phrase, and
// holds a valid token. The refusal itself is still audited and committed.
func TestSwitchFourthAttemptRateLimited(t *testing.T) {
	mock, svc, tokens := gateFixture(t, 3)

	expectBegin(mock)
	expectElevated(mock, true)
	mock.ExpectQuery("select count").
		WithArgs("u1", string(types.ModeLive), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	expectAudit(mock, types.AuditOutcomeRateLimited)
	mock.ExpectCommit()

	_, err := svc.Switch(context.Background(), liveRequest(tokens.Issue("u1")))
	require.ErrorIs(t, err, traderr.ErrRateLimited)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSwitchToLiveUnderLimit(t *testing.T) {
	mock, svc, tokens := gateFixture(t, 3)

	expectBegin(mock)
	expectElevated(mock, true)
	mock.ExpectQuery("select count").
		WithArgs("u1", string(types.ModeLive), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("insert into mode_state").
		WithArgs("u1", string(types.ModeLive), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectAudit(mock, types.AuditOutcomeSwitched)
	mock.ExpectCommit()

	st, err := svc.Switch(context.Background(), liveRequest(tokens.Issue("u1")))
	require.NoError(t, err)
	assert.Equal(t, types.ModeLive, st.Mode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSwitchNotElevatedIsForbidden(t *testing.T) {
	mock, svc, tokens := gateFixture(t, 3)

	expectBegin(mock)
	expectElevated(mock, false)
	expectAudit(mock, types.AuditOutcomeForbidden)
	mock.ExpectCommit()

	_, err := svc.Switch(context.Background(), liveRequest(tokens.Issue("u1")))
	require.ErrorIs(t, err, traderr.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A wrong phrase is refused before the rate window is even consulted.
func TestSwitchWrongPhraseDenied(t *testing.T) {
	mock, svc, tokens := gateFixture(t, 3)

	expectBegin(mock)
	expectElevated(mock, true)
	expectAudit(mock, types.AuditOutcomeMismatch)
	mock.ExpectCommit()

	req := liveRequest(tokens.Issue("u1"))
	req.Confirmation = "i understand"
	_, err := svc.Switch(context.Background(), req)
	require.ErrorIs(t, err, traderr.ErrConfirmationMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSwitchBadTokenDenied(t *testing.T) {
	mock, svc, _ := gateFixture(t, 3)

	expectBegin(mock)
	expectElevated(mock, true)
	expectAudit(mock, types.AuditOutcomeInvalidToken)
	mock.ExpectCommit()

	other := NewTokenIssuer("other-secret", 5*time.Minute)
	_, err := svc.Switch(context.Background(), liveRequest(other.Issue("u1")))
	require.ErrorIs(t, err, traderr.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Dropping back to PAPER needs no elevation, phrase, token, or window check.
func TestSwitchToPaperSkipsLiveChecks(t *testing.T) {
	mock, svc, _ := gateFixture(t, 3)

	expectBegin(mock)
	mock.ExpectExec("insert into mode_state").
		WithArgs("u1", string(types.ModePaper), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("insert into mode_audit").
		WithArgs(pgxmock.AnyArg(), "u1", "u1", "web", string(types.ModePaper),
			string(types.AuditOutcomeSwitched), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	st, err := svc.Switch(context.Background(), SwitchRequest{
		UserID: "u1", Actor: "u1", Origin: "web", Target: types.ModePaper,
	})
	require.NoError(t, err)
	assert.Equal(t, types.ModePaper, st.Mode)
	require.NoError(t, mock.ExpectationsWereMet())
}
