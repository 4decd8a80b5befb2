package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
)

// MockStore is a testify mock of menu.Store for exercising store failures.
type MockStore struct {
	mock.Mock
}

var _ menu.Store = (*MockStore)(nil)

// ListVendors records the call.
func (m *MockStore) ListVendors(ctx context.Context) ([]menu.Vendor, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]menu.Vendor)
	return v, args.Error(1) //nolint:wrapcheck
}

// GetVendor records the call.
func (m *MockStore) GetVendor(ctx context.Context, id int64) (menu.Vendor, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(menu.Vendor)
	return v, args.Error(1) //nolint:wrapcheck
}

// CreateVendor records the call.
func (m *MockStore) CreateVendor(ctx context.Context, vendor menu.Vendor) (menu.Vendor, error) {
	args := m.Called(ctx, vendor)
	v, _ := args.Get(0).(menu.Vendor)
	return v, args.Error(1) //nolint:wrapcheck
}

// UpdateVendorMetadata records the call.
func (m *MockStore) UpdateVendorMetadata(ctx context.Context, vendor menu.Vendor) (menu.Vendor, error) {
	args := m.Called(ctx, vendor)
	v, _ := args.Get(0).(menu.Vendor)
	return v, args.Error(1) //nolint:wrapcheck
}

// DeleteVendor records the call.
func (m *MockStore) DeleteVendor(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0) //nolint:wrapcheck
}

// ListMeals records the call.
func (m *MockStore) ListMeals(ctx context.Context) ([]menu.Meal, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]menu.Meal)
	return v, args.Error(1) //nolint:wrapcheck
}

// ListMealsByVendor records the call.
func (m *MockStore) ListMealsByVendor(ctx context.Context, vendorID int64) ([]menu.Meal, error) {
	args := m.Called(ctx, vendorID)
	v, _ := args.Get(0).([]menu.Meal)
	return v, args.Error(1) //nolint:wrapcheck
}

// InsertMeals records the call.
func (m *MockStore) InsertMeals(ctx context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	args := m.Called(ctx, vendorID, meals)
	return args.Int(0), args.Error(1) //nolint:wrapcheck
}

// InsertMealsIfEmpty records the call.
func (m *MockStore) InsertMealsIfEmpty(ctx context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	args := m.Called(ctx, vendorID, meals)
	return args.Int(0), args.Error(1) //nolint:wrapcheck
}

// ReplaceMeals records the call.
func (m *MockStore) ReplaceMeals(ctx context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	args := m.Called(ctx, vendorID, meals)
	return args.Int(0), args.Error(1) //nolint:wrapcheck
}

// DeleteMeal records the call.
func (m *MockStore) DeleteMeal(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0) //nolint:wrapcheck
}

// Ping records the call.
func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0) //nolint:wrapcheck
}

// Close records the call.
func (m *MockStore) Close() error {
	return m.Called().Error(0) //nolint:wrapcheck
}
