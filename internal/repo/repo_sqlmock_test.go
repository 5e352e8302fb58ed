package repo

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	dialector := postgres.New(postgres.Config{
		Conn:       mockDb,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return NewRepository(db, nil, zap.NewNop().Sugar(), "888"), mock
}

var (
	debitLeg  = regexp.QuoteMeta("UPDATE wallet SET balance = balance - $1")
	creditLeg = regexp.QuoteMeta("UPDATE wallet SET balance = balance + $1")
)

func TestRepository_TransferIssuesGuardedUpdatesInOneTx(t *testing.T) {
	r, mock := newMockRepo(t)
	any5 := []driver.Value{sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()}

	mock.ExpectBegin()
	mock.ExpectQuery(debitLeg + `.*AND balance >= \$5 RETURNING balance, norek`).
		WithArgs(any5...).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "norek"}).AddRow("60", "8880000000001"))
	mock.ExpectQuery(creditLeg + `.*RETURNING balance, norek`).
		WithArgs(any5[:4]...).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "norek"}).AddRow("90", "8880000000002"))
	mock.ExpectQuery(`INSERT INTO "transfer"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(`INSERT INTO "event_outbox"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	xfer := model.NewTransfer(1, 2, dec("40"))
	sender, receiver, err := r.Transfer(context.Background(), xfer)
	require.NoError(t, err)
	assert.True(t, dec("60").Equal(sender))
	assert.True(t, dec("90").Equal(receiver))
	assert.Equal(t, uint64(11), xfer.ID)
	assert.Equal(t, model.TransferSuccess, xfer.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_TransferRollsBackWhenGuardFails(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(debitLeg).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "norek"}))
	mock.ExpectQuery(`SELECT \* FROM "wallet" WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "norek", "user_id", "balance", "status", "created_date", "updated_date"}).
			AddRow(1, "8880000000001", 1, "10", "Active", time.Now(), nil))
	mock.ExpectRollback()

	xfer := model.NewTransfer(1, 2, dec("40"))
	_, _, err := r.Transfer(context.Background(), xfer)
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
	assert.EqualError(t, err, "Insufficient balance: attempted to debit 40, but only 10 available")
	assert.Equal(t, uint64(0), xfer.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_TransferLocksLowerUserFirst(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(creditLeg+`.*RETURNING balance, norek`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "norek"}).AddRow("25", "8880000000001"))
	mock.ExpectQuery(debitLeg+`.*AND balance >= \$5 RETURNING balance, norek`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(2), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "norek"}).AddRow("75", "8880000000002"))
	mock.ExpectQuery(`INSERT INTO "transfer"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectQuery(`INSERT INTO "event_outbox"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectCommit()

	xfer := model.NewTransfer(2, 1, dec("25"))
	sender, receiver, err := r.Transfer(context.Background(), xfer)
	require.NoError(t, err)
	assert.True(t, dec("75").Equal(sender))
	assert.True(t, dec("25").Equal(receiver))
	assert.Equal(t, "8880000000002", xfer.AccountDebit)
	assert.Equal(t, "8880000000001", xfer.AccountCredit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_TransferMissAfterConcurrentCredit(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(debitLeg).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "norek"}))
	mock.ExpectQuery(`SELECT \* FROM "wallet" WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "norek", "user_id", "balance", "status", "created_date", "updated_date"}).
			AddRow(1, "8880000000001", 1, "50", "Active", time.Now(), nil))
	mock.ExpectRollback()

	_, _, err := r.Transfer(context.Background(), model.NewTransfer(1, 2, dec("40")))
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
	assert.NotContains(t, err.Error(), "available")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_TransferDriverFailureIsUnavailable(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(debitLeg).WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, _, err := r.Transfer(context.Background(), model.NewTransfer(1, 2, dec("1")))
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"record not found", gorm.ErrRecordNotFound, model.ErrWalletNotFound},
		{"duplicated key", gorm.ErrDuplicatedKey, model.ErrStorageConflict},
		{"pg unique", &pgconn.PgError{Code: "23505", Message: "dup"}, model.ErrStorageConflict},
		{"pg check", &pgconn.PgError{Code: "23514", Message: "chk"}, model.ErrInsufficientBalance},
		{"pg other", &pgconn.PgError{Code: "57P01"}, model.ErrStorageUnavailable},
		{"domain passthrough", model.ErrWalletInactive, model.ErrWalletInactive},
		{"context", context.Canceled, model.ErrStorageUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tc.in, model.ErrWalletNotFound), tc.want)
		})
	}
	assert.NoError(t, translate(nil, model.ErrWalletNotFound))
}
