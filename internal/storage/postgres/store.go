// Package postgres provides the Postgres-backed vendor and meal store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

const vendorColumns = `id, vendor_name, menu_url, website, instagram, google_maps,
	review_links, vendor_description, vendor_logo, status_code, last_updated`

const mealColumns = `id, vendor_id, meal_name, description, ingredients,
	dietary_alignment, price, meal_photos, url`

const insertMealSQL = `
INSERT INTO meals (
	vendor_id, meal_name, description, ingredients,
	dietary_alignment, price, meal_photos, url
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (vendor_id, meal_name) DO NOTHING`

// lockVendorSQL row-locks the vendor so conditional ingests and replacements
// of its meals serialize, and reports whether it already has meals.
const lockVendorSQL = `SELECT EXISTS (SELECT 1 FROM meals WHERE vendor_id = $1) FROM vendors WHERE id = $1 FOR UPDATE`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	Migrate         bool
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// Store implements menu.Store on top of a pgx pool.
type Store struct {
	pool pool
}

// New connects to Postgres and, when cfg.Migrate is set, applies the embedded
// schema migrations before returning.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if cfg.Migrate {
		if _, err := Migrate(p); err != nil {
			p.Close()
			return nil, err
		}
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// ListVendors returns all vendors ordered by ID.
func (s *Store) ListVendors(ctx context.Context) ([]menu.Vendor, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vendorColumns+` FROM vendors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	vendors := make([]menu.Vendor, 0)
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
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
	row := s.pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id)
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
	query := `
INSERT INTO vendors (
	vendor_name, menu_url, website, instagram, google_maps,
	review_links, vendor_description, vendor_logo, status_code, last_updated
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id`
	err = s.pool.QueryRow(ctx, query,
		vendor.Name,
		vendor.MenuURL,
		vendor.Website,
		vendor.SocialLinks.Instagram,
		vendor.SocialLinks.GoogleMaps,
		links,
		vendor.Description,
		vendor.Logo,
		vendor.StatusCode,
		vendor.LastUpdated,
	).Scan(&vendor.ID)
	if err != nil {
		return menu.Vendor{}, fmt.Errorf("insert vendor %q: %w", vendor.Name, mapError(err))
	}
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
	query := `
UPDATE vendors SET
	website = $2,
	instagram = $3,
	google_maps = $4,
	review_links = $5,
	vendor_description = $6,
	vendor_logo = $7,
	last_updated = $8
WHERE id = $1
RETURNING ` + vendorColumns
	row := s.pool.QueryRow(ctx, query,
		vendor.ID,
		vendor.Website,
		vendor.SocialLinks.Instagram,
		vendor.SocialLinks.GoogleMaps,
		links,
		vendor.Description,
		vendor.Logo,
		vendor.LastUpdated,
	)
	updated, err := scanVendor(row)
	if err != nil {
		return menu.Vendor{}, fmt.Errorf("update vendor %d: %w", vendor.ID, mapError(err))
	}
	return updated, nil
}

// DeleteVendor removes the vendor; meals go with it via ON DELETE CASCADE.
func (s *Store) DeleteVendor(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vendors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vendor %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
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
	return s.queryMeals(ctx, `SELECT `+mealColumns+` FROM meals WHERE vendor_id = $1 ORDER BY id`, vendorID)
}

// InsertMeals inserts meals in one transaction, ignoring (vendor, name) conflicts.
func (s *Store) InsertMeals(ctx context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	if len(meals) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		n, err := insertMeals(ctx, tx, vendorID, meals)
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// InsertMealsIfEmpty inserts meals only when the vendor has none. The check
// and the insert share a transaction holding the vendor row lock.
func (s *Store) InsertMealsIfEmpty(ctx context.Context, vendorID int64, meals []menu.Meal) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		hasMeals, err := lockVendor(ctx, tx, vendorID)
		if err != nil {
			return err
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
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockVendor(ctx, tx, vendorID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM meals WHERE vendor_id = $1`, vendorID); err != nil {
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
	tag, err := s.pool.Exec(ctx, `DELETE FROM meals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete meal %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meal %d: %w", id, menu.ErrNotFound)
	}
	return nil
}

func (s *Store) queryMeals(ctx context.Context, query string, args ...any) ([]menu.Meal, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	defer rows.Close()

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

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func lockVendor(ctx context.Context, tx pgx.Tx, vendorID int64) (bool, error) {
	var hasMeals bool
	if err := tx.QueryRow(ctx, lockVendorSQL, vendorID).Scan(&hasMeals); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("vendor %d: %w", vendorID, menu.ErrNotFound)
		}
		return false, fmt.Errorf("lock vendor %d: %w", vendorID, err)
	}
	return hasMeals, nil
}

func insertMeals(ctx context.Context, tx pgx.Tx, vendorID int64, meals []menu.Meal) (int, error) {
	inserted := 0
	for _, m := range meals {
		tag, err := tx.Exec(ctx, insertMealSQL,
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
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func scanVendor(row pgx.Row) (menu.Vendor, error) {
	var (
		v     menu.Vendor
		links []byte
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
		&v.LastUpdated,
	)
	if err != nil {
		return menu.Vendor{}, err //nolint:wrapcheck // callers add context
	}
	v.ReviewLinks = map[string]string{}
	if len(links) > 0 {
		if err := json.Unmarshal(links, &v.ReviewLinks); err != nil {
			return menu.Vendor{}, fmt.Errorf("decode review_links: %w", err)
		}
	}
	return v, nil
}

func marshalLinks(links map[string]string) ([]byte, error) {
	if links == nil {
		links = map[string]string{}
	}
	data, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("marshal review_links: %w", err)
	}
	return data, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return menu.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", menu.ErrConflict, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s", menu.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}
