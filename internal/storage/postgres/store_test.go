package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
)

var vendorCols = []string{
	"id", "vendor_name", "menu_url", "website", "instagram", "google_maps",
	"review_links", "vendor_description", "vendor_logo", "status_code", "last_updated",
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestGetVendorScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM vendors WHERE id").
		WithArgs(int64(4)).
		WillReturnRows(pgxmock.NewRows(vendorCols).AddRow(
			int64(4), "Leafy", "https://leafy.example/menu", "NA", "NA", "NA",
			[]byte(`{"yelp":"https://yelp.example/leafy"}`), "Salads.", "NA", 200, now,
		))

	v, err := store.GetVendor(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, "Leafy", v.Name)
	require.Equal(t, map[string]string{"yelp": "https://yelp.example/leafy"}, v.ReviewLinks)
	require.True(t, v.Reachable())
	require.Equal(t, now, v.LastUpdated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVendorMissingMapsToNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM vendors WHERE id").
		WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows(vendorCols))

	_, err := store.GetVendor(context.Background(), 9)
	require.ErrorIs(t, err, menu.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateVendorDuplicateNameIsConflict(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	in := menu.VendorInput{Name: "Leafy", MenuURL: "https://leafy.example/menu"}.Vendor(menu.StatusReachable, now)

	mock.ExpectQuery("INSERT INTO vendors").
		WithArgs("Leafy", "https://leafy.example/menu", "NA", "NA", "NA", []byte(`{}`), "NA", "NA", 200, now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("INSERT INTO vendors").
		WithArgs("Leafy", "https://leafy.example/menu", "NA", "NA", "NA", []byte(`{}`), "NA", "NA", 200, now).
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "vendors_vendor_name_key"})

	created, err := store.CreateVendor(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)

	_, err = store.CreateVendor(context.Background(), in)
	require.ErrorIs(t, err, menu.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMealsCountsOnlyNewRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	meals := []menu.Meal{
		{Name: "Bowl", Description: "NA", Ingredients: "NA", DietaryAlignment: "VG", Price: "10", Photos: "NA", URL: "NA"},
		{Name: "Wrap", Description: "NA", Ingredients: "NA", DietaryAlignment: "NA", Price: "8", Photos: "NA", URL: "NA"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO meals").
		WithArgs(int64(3), "Bowl", "NA", "NA", "VG", "10", "NA", "NA").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO meals").
		WithArgs(int64(3), "Wrap", "NA", "NA", "NA", "8", "NA", "NA").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := store.InsertMeals(context.Background(), 3, meals)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMealsIfEmptyInsertsUnderVendorLock(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS (.+) FROM vendors WHERE id = (.+) FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO meals").
		WithArgs(int64(3), "Bowl", "NA", "NA", "NA", "10", "NA", "NA").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := store.InsertMealsIfEmpty(context.Background(), 3, []menu.Meal{{
		Name: "Bowl", Description: "NA", Ingredients: "NA", DietaryAlignment: "NA",
		Price: "10", Photos: "NA", URL: "NA",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMealsIfEmptySkipsCachedVendor(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS (.+) FROM vendors WHERE id = (.+) FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	n, err := store.InsertMealsIfEmpty(context.Background(), 3, []menu.Meal{{Name: "Bowl"}})
	require.ErrorIs(t, err, menu.ErrMealsCached)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMealsIfEmptyUnknownVendor(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS (.+) FROM vendors WHERE id = (.+) FOR UPDATE").
		WithArgs(int64(77)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}))
	mock.ExpectRollback()

	_, err := store.InsertMealsIfEmpty(context.Background(), 77, []menu.Meal{{Name: "Bowl"}})
	require.ErrorIs(t, err, menu.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceMealsRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS (.+) FROM vendors WHERE id = (.+) FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("DELETE FROM meals WHERE vendor_id").
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO meals").
		WithArgs(int64(3), "Bowl", "NA", "NA", "NA", "NA", "NA", "NA").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.ReplaceMeals(context.Background(), 3, []menu.Meal{{
		Name: "Bowl", Description: "NA", Ingredients: "NA", DietaryAlignment: "NA",
		Price: "NA", Photos: "NA", URL: "NA",
	}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceMealsCommits(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS (.+) FROM vendors WHERE id = (.+) FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("DELETE FROM meals WHERE vendor_id").
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO meals").
		WithArgs(int64(3), "Soup", "NA", "NA", "NA", "6", "NA", "NA").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := store.ReplaceMeals(context.Background(), 3, []menu.Meal{{
		Name: "Soup", Description: "NA", Ingredients: "NA", DietaryAlignment: "NA",
		Price: "6", Photos: "NA", URL: "NA",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteVendorNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM vendors WHERE id").
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := store.DeleteVendor(context.Background(), 9)
	require.ErrorIs(t, err, menu.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMealsByVendor(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cols := []string{"id", "vendor_id", "meal_name", "description", "ingredients",
		"dietary_alignment", "price", "meal_photos", "url"}
	mock.ExpectQuery("SELECT (.+) FROM meals WHERE vendor_id").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), int64(3), "Bowl", "NA", "NA", "VG", "10", "NA", "NA").
			AddRow(int64(2), int64(3), "Wrap", "NA", "NA", "NA", "8", "NA", "NA"))

	meals, err := store.ListMealsByVendor(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, meals, 2)
	require.Equal(t, "Wrap", meals[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMealsUnknownVendor(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO meals").
		WithArgs(int64(77), "Bowl", "NA", "NA", "NA", "NA", "NA", "NA").
		WillReturnError(&pgconn.PgError{Code: codeForeignKeyViolation})
	mock.ExpectRollback()

	_, err := store.InsertMeals(context.Background(), 77, []menu.Meal{{
		Name: "Bowl", Description: "NA", Ingredients: "NA", DietaryAlignment: "NA",
		Price: "NA", Photos: "NA", URL: "NA",
	}})
	require.ErrorIs(t, err, menu.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
