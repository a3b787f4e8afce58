package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarels/giftregistry/internal/model"
)

var itemCols = []string{
	"id", "title", "description", "link", "image_url", "price_range", "category",
	"is_claimed", "claim_token", "claim_expires_at", "last_claimed_at", "version", "created_at", "updated_at",
}

func newMock(t *testing.T) (*ItemStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewItemStore(db, nil), mock
}

func itemRow(id, title string, claimToken interface{}, expiresAt interface{}, version int64, at time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(itemCols).
		AddRow(id, title, nil, nil, nil, nil, nil, claimToken != nil, claimToken, expiresAt, nil, version, at, at)
}

func TestSanitize(t *testing.T) {
	assert.Nil(t, Sanitize(nil))

	blank := "   "
	assert.Nil(t, Sanitize(&blank))

	padded := "  hello  "
	out := Sanitize(&padded)
	require.NotNil(t, out)
	assert.Equal(t, "hello", *out)
}

func TestInsertStoresBlankOptionalsAsNull(t *testing.T) {
	st, mock := newMock(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// created_at and updated_at are SQL-side UTC_TIMESTAMP(6) expressions,
	// the same clock Mutate stamps updated_at with, so they are not bind
	// parameters here.
	mock.ExpectExec(`INSERT INTO wishlist_items(?s).*UTC_TIMESTAMP\(6\), UTC_TIMESTAMP\(6\)`).
		WithArgs(sqlmock.AnyArg(), "Crib", nil, nil, nil, nil, nil, false, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM wishlist_items WHERE id = ?").
		WillReturnRows(itemRow("id-1", "Crib", nil, nil, 1, at))

	got, err := st.Insert(context.Background(), &model.WishlistItem{Title: "Crib"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)
	assert.Nil(t, got.Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissing(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM wishlist_items WHERE id = ?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(itemCols))

	_, err := st.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoSuchItem)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersByCreation(t *testing.T) {
	st, mock := newMock(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(itemCols).
		AddRow("id-1", "Crib", nil, nil, nil, nil, nil, false, nil, nil, nil, int64(1), at, at).
		AddRow("id-2", "Stroller", nil, nil, nil, nil, nil, true, "tok-a", at.Add(time.Hour), at, int64(3), at.Add(time.Minute), at.Add(time.Minute))
	mock.ExpectQuery("SELECT (.+) FROM wishlist_items ORDER BY created_at, id").
		WillReturnRows(rows)

	items, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "id-1", items[0].ID)
	require.NotNil(t, items[1].ClaimToken)
	assert.Equal(t, "tok-a", *items[1].ClaimToken)
	require.NotNil(t, items[1].ClaimExpiresAt)
	require.NotNil(t, items[1].LastClaimedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestMutateRetriesVersionConflict simulates a concurrent writer bumping
// the version between read and write.  The first conditional update
// touches zero rows; the loop re-reads and the second attempt lands.
func TestMutateRetriesVersionConflict(t *testing.T) {
	st, mock := newMock(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Attempt 1: read version 1, update misses.
	mock.ExpectQuery("SELECT (.+) FROM wishlist_items WHERE id = ?").
		WithArgs("id-1").
		WillReturnRows(itemRow("id-1", "Stroller", nil, nil, 1, at))
	mock.ExpectExec(`UPDATE wishlist_items(?s).*updated_at = UTC_TIMESTAMP\(6\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Attempt 2: re-read at version 2, update lands, row read back.
	mock.ExpectQuery("SELECT (.+) FROM wishlist_items WHERE id = ?").
		WithArgs("id-1").
		WillReturnRows(itemRow("id-1", "Stroller", nil, nil, 2, at))
	mock.ExpectExec(`UPDATE wishlist_items(?s).*updated_at = UTC_TIMESTAMP\(6\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM wishlist_items WHERE id = ?").
		WithArgs("id-1").
		WillReturnRows(itemRow("id-1", "Stroller", "tok-a", at.Add(30*time.Minute), 3, at))

	calls := 0
	got, err := st.Mutate(context.Background(), "id-1", func(cur *model.WishlistItem) (*model.WishlistItem, error) {
		calls++
		next := cur.Clone()
		tok := "tok-a"
		exp := at.Add(30 * time.Minute)
		next.IsClaimed = true
		next.ClaimToken = &tok
		next.ClaimExpiresAt = &exp
		return &next, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "decide step re-runs against fresh state")
	assert.Equal(t, "tok-a", *got.ClaimToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateAbortsOnDecideError(t *testing.T) {
	st, mock := newMock(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM wishlist_items WHERE id = ?").
		WithArgs("id-1").
		WillReturnRows(itemRow("id-1", "Stroller", "tok-a", at.Add(time.Hour), 1, at))

	boom := assert.AnError
	_, err := st.Mutate(context.Background(), "id-1", func(cur *model.WishlistItem) (*model.WishlistItem, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateMissingItem(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM wishlist_items WHERE id = ?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(itemCols))

	_, err := st.Mutate(context.Background(), "missing", func(cur *model.WishlistItem) (*model.WishlistItem, error) {
		t.Fatal("decide step must not run for a missing item")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrNoSuchItem)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteIdempotent(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectExec("DELETE FROM wishlist_items WHERE id = ?").
		WithArgs("id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM wishlist_items WHERE id = ?").
		WithArgs("id-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, st.Delete(context.Background(), "id-1"))
	require.NoError(t, st.Delete(context.Background(), "id-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
