package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursepay/internal/models"
)

func TestEnrollmentRepository_GrantHook(t *testing.T) {
	order := &models.Order{ID: 7, UserID: 3}
	item := &models.OrderItem{ID: 11, OrderID: 7, CourseID: "course-a"}

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		hook := NewEnrollmentRepository(db).GrantHook()

		mock.ExpectExec("INSERT (IGNORE )?INTO `enrollments`").
			WillReturnResult(sqlmock.NewResult(5, 1))

		require.NoError(t, hook(db, order, item))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DBError", func(t *testing.T) {
		db, mock := newMockDB(t)
		hook := NewEnrollmentRepository(db).GrantHook()

		mock.ExpectExec("INTO `enrollments`").WillReturnError(errors.New("db error"))

		assert.Error(t, hook(db, order, item))
	})
}

func TestEnrollmentRepository_FindByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `enrollments` WHERE user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "course_id"}).AddRow(1, 3, "course-a"))

	got, err := repo.FindByUser(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "course-a", got[0].CourseID)
}
