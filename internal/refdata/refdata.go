// Package refdata reads the read-only reference tables: administrative
// divisions (province, city, area) and the source_category table used by
// channel classification. A local sqlite file or a remote libsql database
// can back it.
package refdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"go.uber.org/zap"

	"tongjisync/internal/geo"
)

// DB is a reference-data connection.
type DB struct {
	*sql.DB
	log *zap.Logger

	mu         sync.RWMutex
	categories map[string]categoryHit
}

type categoryHit struct {
	category string
	ok       bool
}

// DriverFor picks the database/sql driver for dsn.
func DriverFor(dsn string) string {
	if strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "https://") || strings.HasPrefix(dsn, "http://") {
		return "libsql"
	}
	return "sqlite3"
}

// Open connects to dsn and pings it.
func Open(dsn string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()
	driver := DriverFor(dsn)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open reference db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping reference db: %w", err)
	}

	log.Info("reference db connected", zap.String("driver", driver), zap.Duration("duration", time.Since(start)))
	return &DB{DB: db, log: log, categories: make(map[string]categoryHit)}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS province (code TEXT PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS city (code TEXT PRIMARY KEY, name TEXT NOT NULL, provinceCode TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS area (code TEXT PRIMARY KEY, name TEXT NOT NULL, cityCode TEXT, provinceCode TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS source_category (source TEXT PRIMARY KEY, category TEXT NOT NULL);
`

// EnsureSchema creates the reference tables when missing.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure reference schema: %w", err)
		}
	}
	return nil
}

func (d *DB) divisionsLike(ctx context.Context, table, name string) ([]geo.Division, error) {
	// at most two rows are needed to tell a unique match from an ambiguous one
	q := `SELECT name, code FROM ` + table + ` WHERE name LIKE '%' || ? || '%' LIMIT 2`
	rows, err := d.QueryContext(ctx, q, name)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []geo.Division
	for rows.Next() {
		var dv geo.Division
		if err := rows.Scan(&dv.Name, &dv.Code); err != nil {
			return nil, err
		}
		out = append(out, dv)
	}
	return out, rows.Err()
}

func (d *DB) CitiesLike(ctx context.Context, name string) ([]geo.Division, error) {
	return d.divisionsLike(ctx, "city", name)
}

func (d *DB) AreasLike(ctx context.Context, name string) ([]geo.Division, error) {
	return d.divisionsLike(ctx, "area", name)
}

func (d *DB) scalar(ctx context.Context, q string, args ...any) (string, bool, error) {
	var v string
	err := d.QueryRowContext(ctx, q, args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (d *DB) ProvinceName(ctx context.Context, code string) (string, bool, error) {
	return d.scalar(ctx, `SELECT name FROM province WHERE code = ?`, code)
}

func (d *DB) CityName(ctx context.Context, code string) (string, bool, error) {
	return d.scalar(ctx, `SELECT name FROM city WHERE code = ?`, code)
}

// AreaInProvince finds a county-level area whose name contains name.
func (d *DB) AreaInProvince(ctx context.Context, name, provinceCode string) (string, bool, error) {
	return d.scalar(ctx, `SELECT name FROM area WHERE name LIKE '%' || ? || '%' AND provinceCode = ? LIMIT 1`, name, provinceCode)
}

// Category looks up the category of a source token. Results, misses
// included, are memoised for the life of the connection.
func (d *DB) Category(ctx context.Context, token string) (string, bool, error) {
	d.mu.RLock()
	hit, cached := d.categories[token]
	d.mu.RUnlock()
	if cached {
		return hit.category, hit.ok, nil
	}

	cat, ok, err := d.scalar(ctx, `SELECT category FROM source_category WHERE source = ?`, token)
	if err != nil {
		return "", false, fmt.Errorf("query source_category: %w", err)
	}

	d.mu.Lock()
	d.categories[token] = categoryHit{category: cat, ok: ok}
	d.mu.Unlock()
	return cat, ok, nil
}
