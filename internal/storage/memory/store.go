// Package memory provides an in-memory Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
)

type mealKey struct {
	vendorID int64
	name     string
}

// Store keeps vendors and meals in maps guarded by a single mutex. It enforces
// the same uniqueness and cascade rules as the SQL stores.
type Store struct {
	mu         sync.RWMutex
	vendors    map[int64]menu.Vendor
	vendorName map[string]int64
	meals      map[int64]menu.Meal
	mealIndex  map[mealKey]int64
	nextVendor int64
	nextMeal   int64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		vendors:    make(map[int64]menu.Vendor),
		vendorName: make(map[string]int64),
		meals:      make(map[int64]menu.Meal),
		mealIndex:  make(map[mealKey]int64),
	}
}

// ListVendors returns all vendors ordered by ID.
func (s *Store) ListVendors(_ context.Context) ([]menu.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]menu.Vendor, 0, len(s.vendors))
	for _, id := range slices.Sorted(maps.Keys(s.vendors)) {
		out = append(out, cloneVendor(s.vendors[id]))
	}
	return out, nil
}

// GetVendor fetches a vendor by ID.
func (s *Store) GetVendor(_ context.Context, id int64) (menu.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vendors[id]
	if !ok {
		return menu.Vendor{}, fmt.Errorf("vendor %d: %w", id, menu.ErrNotFound)
	}
	return cloneVendor(v), nil
}

// CreateVendor assigns an ID and stores the vendor. Names are unique.
func (s *Store) CreateVendor(_ context.Context, vendor menu.Vendor) (menu.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vendorName[vendor.Name]; exists {
		return menu.Vendor{}, fmt.Errorf("vendor %q: %w", vendor.Name, menu.ErrConflict)
	}
	s.nextVendor++
	vendor.ID = s.nextVendor
	vendor = cloneVendor(vendor)
	s.vendors[vendor.ID] = vendor
	s.vendorName[vendor.Name] = vendor.ID
	return cloneVendor(vendor), nil
}

// UpdateVendorMetadata overwrites the metadata columns of an existing vendor.
// Name, menu URL and status code are left as stored.
func (s *Store) UpdateVendorMetadata(_ context.Context, vendor menu.Vendor) (menu.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.vendors[vendor.ID]
	if !ok {
		return menu.Vendor{}, fmt.Errorf("vendor %d: %w", vendor.ID, menu.ErrNotFound)
	}
	current.Website = vendor.Website
	current.SocialLinks = vendor.SocialLinks
	current.ReviewLinks = maps.Clone(vendor.ReviewLinks)
	current.Description = vendor.Description
	current.Logo = vendor.Logo
	current.LastUpdated = vendor.LastUpdated
	s.vendors[vendor.ID] = current
	return cloneVendor(current), nil
}

// DeleteVendor removes the vendor and all of its meals.
func (s *Store) DeleteVendor(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vendors[id]
	if !ok {
		return fmt.Errorf("vendor %d: %w", id, menu.ErrNotFound)
	}
	s.dropMealsLocked(id)
	delete(s.vendorName, v.Name)
	delete(s.vendors, id)
	return nil
}

// ListMeals returns every stored meal ordered by ID.
func (s *Store) ListMeals(_ context.Context) ([]menu.Meal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]menu.Meal, 0, len(s.meals))
	for _, id := range slices.Sorted(maps.Keys(s.meals)) {
		out = append(out, s.meals[id])
	}
	return out, nil
}

// ListMealsByVendor returns the vendor's meals ordered by ID.
func (s *Store) ListMealsByVendor(_ context.Context, vendorID int64) ([]menu.Meal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]menu.Meal, 0)
	for _, id := range slices.Sorted(maps.Keys(s.meals)) {
		if m := s.meals[id]; m.VendorID == vendorID {
			out = append(out, m)
		}
	}
	return out, nil
}

// InsertMeals stores meals, skipping any (vendor, name) pair already present.
func (s *Store) InsertMeals(_ context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[vendorID]; !ok {
		return 0, fmt.Errorf("vendor %d: %w", vendorID, menu.ErrNotFound)
	}
	return s.insertLocked(vendorID, meals), nil
}

// InsertMealsIfEmpty stores meals only when the vendor has none, checked
// under the same lock as the insert.
func (s *Store) InsertMealsIfEmpty(_ context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[vendorID]; !ok {
		return 0, fmt.Errorf("vendor %d: %w", vendorID, menu.ErrNotFound)
	}
	for _, m := range s.meals {
		if m.VendorID == vendorID {
			return 0, fmt.Errorf("vendor %d: %w", vendorID, menu.ErrMealsCached)
		}
	}
	return s.insertLocked(vendorID, meals), nil
}

// ReplaceMeals swaps the vendor's meals for the given set under one lock.
func (s *Store) ReplaceMeals(_ context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[vendorID]; !ok {
		return 0, fmt.Errorf("vendor %d: %w", vendorID, menu.ErrNotFound)
	}
	s.dropMealsLocked(vendorID)
	return s.insertLocked(vendorID, meals), nil
}

// DeleteMeal removes a single meal.
func (s *Store) DeleteMeal(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meals[id]
	if !ok {
		return fmt.Errorf("meal %d: %w", id, menu.ErrNotFound)
	}
	delete(s.mealIndex, mealKey{vendorID: m.VendorID, name: m.Name})
	delete(s.meals, id)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) insertLocked(vendorID int64, meals []menu.Meal) int {
	inserted := 0
	for _, m := range meals {
		key := mealKey{vendorID: vendorID, name: m.Name}
		if _, dup := s.mealIndex[key]; dup {
			continue
		}
		s.nextMeal++
		m.ID = s.nextMeal
		m.VendorID = vendorID
		s.meals[m.ID] = m
		s.mealIndex[key] = m.ID
		inserted++
	}
	return inserted
}

func (s *Store) dropMealsLocked(vendorID int64) {
	for id, m := range s.meals {
		if m.VendorID == vendorID {
			delete(s.mealIndex, mealKey{vendorID: vendorID, name: m.Name})
			delete(s.meals, id)
		}
	}
}

func cloneVendor(v menu.Vendor) menu.Vendor {
	v.ReviewLinks = maps.Clone(v.ReviewLinks)
	if v.ReviewLinks == nil {
		v.ReviewLinks = map[string]string{}
	}
	return v
}
