package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursepay/internal/payment"
)

func TestCallbackLogRepository_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejected", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCallbackLogRepository(db)

		mock.ExpectExec("INSERT INTO `callback_logs`").
			WithArgs(
				sqlmock.AnyArg(), int64(42), "rejected", "amount_mismatch",
				"0", "CAPTURE", "CAPTURE", "p002=SHOP-42", sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.Record(ctx, payment.AuditEntry{
			OrderID:     42,
			RejectKind:  payment.RejectAmountMismatch,
			PaymentType: "0",
			Job:         "CAPTURE",
			Status:      "CAPTURE",
			RawBody:     "p002=SHOP-42",
			Fields:      map[string]string{"order_id": "SHOP-42"},
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AcceptedWithoutOrder", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCallbackLogRepository(db)

		mock.ExpectExec("INSERT INTO `callback_logs`").
			WithArgs(
				sqlmock.AnyArg(), nil, "ignore", "",
				"9", "CAPTURE", "REQSUCCESS", "raw", sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.Record(ctx, payment.AuditEntry{
			Disposition: payment.DispositionIgnore,
			PaymentType: "9",
			Job:         "CAPTURE",
			Status:      "REQSUCCESS",
			RawBody:     "raw",
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DBError", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCallbackLogRepository(db)

		mock.ExpectExec("INSERT INTO `callback_logs`").WillReturnError(errors.New("database error"))

		err := repo.Record(ctx, payment.AuditEntry{Disposition: payment.DispositionCapture})
		assert.Error(t, err)
	})
}

func TestCallbackLogRepository_RecordReplay(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCallbackLogRepository(db)

	mock.ExpectExec("INSERT INTO `callback_logs`").
		WithArgs(
			sqlmock.AnyArg(), nil, "replayed", "",
			"", "", "", "p002=SHOP-42", sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, repo.RecordReplay(context.Background(), "abc123", "p002=SHOP-42"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallbackLogRepository_FindByOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCallbackLogRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `callback_logs` WHERE order_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "disposition", "reject_kind"}).
			AddRow("b", 42, "capture", "").
			AddRow("a", 42, "rejected", "signature_invalid"))

	logs, err := repo.FindByOrder(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "capture", logs[0].Disposition)
	assert.Equal(t, "signature_invalid", logs[1].RejectKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallbackLogRepository_SummarizeSince(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCallbackLogRepository(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT disposition, reject_kind, COUNT\\(\\*\\) AS total FROM `callback_logs`").
			WillReturnRows(sqlmock.NewRows([]string{"disposition", "reject_kind", "total"}).
				AddRow("capture", "", 12).
				AddRow("rejected", "signature_invalid", 2))

		rows, err := repo.SummarizeSince(context.Background(), time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, DispositionCount{Disposition: "capture", Total: 12}, rows[0])
		assert.Equal(t, "signature_invalid", rows[1].RejectKind)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery("FROM `callback_logs`").WillReturnError(errors.New("db error"))

		_, err := repo.SummarizeSince(context.Background(), time.Now())
		assert.Error(t, err)
	})
}
