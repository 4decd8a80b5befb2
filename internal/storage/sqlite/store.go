// Package sqlite provides a single-file SQLite store for small deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
)

var schema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS vendors (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		vendor_name        TEXT    NOT NULL UNIQUE,
		menu_url           TEXT    NOT NULL,
		website            TEXT    NOT NULL DEFAULT 'NA',
		instagram          TEXT    NOT NULL DEFAULT 'NA',
		google_maps        TEXT    NOT NULL DEFAULT 'NA',
		review_links       TEXT    NOT NULL DEFAULT '{}',
		vendor_description TEXT    NOT NULL DEFAULT 'NA',
		vendor_logo        TEXT    NOT NULL DEFAULT 'NA',
		status_code        INTEGER NOT NULL DEFAULT 404,
		last_updated       TEXT    NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meals (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		vendor_id         INTEGER NOT NULL REFERENCES vendors (id) ON DELETE CASCADE,
		meal_name         TEXT    NOT NULL,
		description       TEXT    NOT NULL DEFAULT 'NA',
		ingredients       TEXT    NOT NULL DEFAULT 'NA',
		dietary_alignment TEXT    NOT NULL DEFAULT 'NA',
		price             TEXT    NOT NULL DEFAULT 'NA',
		meal_photos       TEXT    NOT NULL DEFAULT 'NA',
		url               TEXT    NOT NULL DEFAULT 'NA',
		UNIQUE (vendor_id, meal_name)
	)`,
	`CREATE INDEX IF NOT EXISTS meals_vendor_id_idx ON meals (vendor_id)`,
}

const vendorColumns = `id, vendor_name, menu_url, website, instagram, google_maps,
	review_links, vendor_description, vendor_logo, status_code, last_updated`

const mealColumns = `id, vendor_id, meal_name, description, ingredients,
	dietary_alignment, price, meal_photos, url`

const insertMealSQL = `
INSERT INTO meals (
	vendor_id, meal_name, description, ingredients,
	dietary_alignment, price, meal_photos, url
) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT (vendor_id, meal_name) DO NOTHING`

// Store implements menu.Store on an SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database.sqlite_path is required")
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// ListVendors returns all vendors ordered by ID.
func (s *Store) ListVendors(ctx context.Context) ([]menu.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vendorColumns+` FROM vendors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	vendors := make([]menu.Vendor, 0)
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vendors: %w", err)
	}
	return vendors, nil
}

// GetVendor fetches a vendor by ID.
func (s *Store) GetVendor(ctx context.Context, id int64) (menu.Vendor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = ?`, id)
	v, err := scanVendor(row)
	if err != nil {
		return menu.Vendor{}, fmt.Errorf("get vendor %d: %w", id, mapError(err))
	}
	return v, nil
}

// CreateVendor inserts the vendor and returns it with its assigned ID.
func (s *Store) CreateVendor(ctx context.Context, vendor menu.Vendor) (menu.Vendor, error) {
	links, err := marshalLinks(vendor.ReviewLinks)
	if err != nil {
		return menu.Vendor{}, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO vendors (
	vendor_name, menu_url, website, instagram, google_maps,
	review_links, vendor_description, vendor_logo, status_code, last_updated
) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		vendor.Name,
		vendor.MenuURL,
		vendor.Website,
		vendor.SocialLinks.Instagram,
		vendor.SocialLinks.GoogleMaps,
		links,
		vendor.Description,
		vendor.Logo,
		vendor.StatusCode,
		formatTime(vendor.LastUpdated),
	)
	if err != nil {
		return menu.Vendor{}, fmt.Errorf("insert vendor %q: %w", vendor.Name, mapError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return menu.Vendor{}, fmt.Errorf("vendor id: %w", err)
	}
	vendor.ID = id
	if vendor.ReviewLinks == nil {
		vendor.ReviewLinks = map[string]string{}
	}
	return vendor, nil
}

// UpdateVendorMetadata overwrites the metadata columns and returns the stored row.
func (s *Store) UpdateVendorMetadata(ctx context.Context, vendor menu.Vendor) (menu.Vendor, error) {
	links, err := marshalLinks(vendor.ReviewLinks)
	if err != nil {
		return menu.Vendor{}, err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE vendors SET
	website = ?,
	instagram = ?,
	google_maps = ?,
	review_links = ?,
	vendor_description = ?,
	vendor_logo = ?,
	last_updated = ?
WHERE id = ?`,
		vendor.Website,
		vendor.SocialLinks.Instagram,
		vendor.SocialLinks.GoogleMaps,
		links,
		vendor.Description,
		vendor.Logo,
		formatTime(vendor.LastUpdated),
		vendor.ID,
	)
	if err != nil {
		return menu.Vendor{}, fmt.Errorf("update vendor %d: %w", vendor.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return menu.Vendor{}, fmt.Errorf("vendor %d: %w", vendor.ID, menu.ErrNotFound)
	}
	return s.GetVendor(ctx, vendor.ID)
}

// DeleteVendor removes the vendor and, through the foreign key, its meals.
func (s *Store) DeleteVendor(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vendors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete vendor %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("vendor %d: %w", id, menu.ErrNotFound)
	}
	return nil
}

// ListMeals returns every meal ordered by ID.
func (s *Store) ListMeals(ctx context.Context) ([]menu.Meal, error) {
	return s.queryMeals(ctx, `SELECT `+mealColumns+` FROM meals ORDER BY id`)
}

// ListMealsByVendor returns the vendor's meals ordered by ID.
func (s *Store) ListMealsByVendor(ctx context.Context, vendorID int64) ([]menu.Meal, error) {
	return s.queryMeals(ctx, `SELECT `+mealColumns+` FROM meals WHERE vendor_id = ? ORDER BY id`, vendorID)
}

// InsertMeals inserts meals in one transaction, ignoring (vendor, name) conflicts.
func (s *Store) InsertMeals(ctx context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	if len(meals) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := insertMeals(ctx, tx, vendorID, meals)
		inserted = n
		return err
	})
	return inserted, err
}

// InsertMealsIfEmpty inserts meals only when the vendor has none. The store
// holds a single connection, so the check and the insert cannot interleave
// with another transaction.
func (s *Store) InsertMealsIfEmpty(ctx context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var hasMeals bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM meals WHERE vendor_id = ?) FROM vendors WHERE id = ?`,
			vendorID, vendorID,
		).Scan(&hasMeals)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("vendor %d: %w", vendorID, menu.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check meals for vendor %d: %w", vendorID, err)
		}
		if hasMeals {
			return fmt.Errorf("vendor %d: %w", vendorID, menu.ErrMealsCached)
		}
		n, err := insertMeals(ctx, tx, vendorID, meals)
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ReplaceMeals deletes the vendor's meals and inserts the new set in one transaction.
func (s *Store) ReplaceMeals(ctx context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM meals WHERE vendor_id = ?`, vendorID); err != nil {
			return fmt.Errorf("delete meals for vendor %d: %w", vendorID, err)
		}
		n, err := insertMeals(ctx, tx, vendorID, meals)
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// DeleteMeal removes a single meal.
func (s *Store) DeleteMeal(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete meal %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("meal %d: %w", id, menu.ErrNotFound)
	}
	return nil
}

func (s *Store) queryMeals(ctx context.Context, query string, args ...any) ([]menu.Meal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	meals := make([]menu.Meal, 0)
	for rows.Next() {
		var m menu.Meal
		if err := rows.Scan(
			&m.ID,
			&m.VendorID,
			&m.Name,
			&m.Description,
			&m.Ingredients,
			&m.DietaryAlignment,
			&m.Price,
			&m.Photos,
			&m.URL,
		); err != nil {
			return nil, fmt.Errorf("scan meal: %w", err)
		}
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meals: %w", err)
	}
	return meals, nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertMeals(ctx context.Context, tx *sql.Tx, vendorID int64, meals []menu.Meal) (int, error) {
	stmt, err := tx.PrepareContext(ctx, insertMealSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare meal insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, m := range meals {
		res, err := stmt.ExecContext(ctx,
			vendorID,
			m.Name,
			m.Description,
			m.Ingredients,
			m.DietaryAlignment,
			m.Price,
			m.Photos,
			m.URL,
		)
		if err != nil {
			return 0, fmt.Errorf("insert meal %q: %w", m.Name, mapError(err))
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVendor(row scanner) (menu.Vendor, error) {
	var (
		v       menu.Vendor
		links   string
		updated string
	)
	err := row.Scan(
		&v.ID,
		&v.Name,
		&v.MenuURL,
		&v.Website,
		&v.SocialLinks.Instagram,
		&v.SocialLinks.GoogleMaps,
		&links,
		&v.Description,
		&v.Logo,
		&v.StatusCode,
		&updated,
	)
	if err != nil {
		return menu.Vendor{}, err //nolint:wrapcheck // callers add context
	}
	v.ReviewLinks = map[string]string{}
	if links != "" {
		if err := json.Unmarshal([]byte(links), &v.ReviewLinks); err != nil {
			return menu.Vendor{}, fmt.Errorf("decode review_links: %w", err)
		}
	}
	if v.LastUpdated, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return menu.Vendor{}, fmt.Errorf("parse last_updated: %w", err)
	}
	return v, nil
}

func marshalLinks(links map[string]string) (string, error) {
	if links == nil {
		links = map[string]string{}
	}
	data, err := json.Marshal(links)
	if err != nil {
		return "", fmt.Errorf("marshal review_links: %w", err)
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return menu.ErrNotFound
	}
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%w: %s", menu.ErrConflict, sqlErr.Error())
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %s", menu.ErrNotFound, sqlErr.Error())
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", menu.ErrConflict, err.Error())
	}
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return fmt.Errorf("%w: %s", menu.ErrNotFound, err.Error())
	}
	return err
}
