// Package catalog is the relational store of packages and their versions,
// backed by a single-file SQLite database. The UNIQUE constraint on
// (package_name, version_code) is the sole serializer for conflicting
// uploads; there is no application-level lock.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite" // registers the "sqlite" driver
)

// ErrNotFound is returned when a requested row does not exist. Every other
// error is an opaque database failure.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS apps (
	package_name TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT,
	icon_path    TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS app_versions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	package_name TEXT NOT NULL REFERENCES apps(package_name) ON DELETE CASCADE,
	version_code INTEGER NOT NULL,
	version_name TEXT NOT NULL,
	apk_path     TEXT NOT NULL,
	size         INTEGER NOT NULL,
	sha256       TEXT NOT NULL,
	min_sdk      INTEGER NOT NULL,
	uploaded_at  TEXT NOT NULL,
	UNIQUE(package_name, version_code)
);
`

// Store wraps the database handle. Safe for concurrent use; the pool is
// kept small because SQLite allows a single writer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the timestamp format stored in the database.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// querier is satisfied by both *sql.DB and *sql.Tx so read and write
// operations can be shared between the store and its transaction facade.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IsUniqueViolation reports whether err is a violation of the
// (package_name, version_code) uniqueness constraint.
func IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// SQLITE_CONSTRAINT_UNIQUE / SQLITE_CONSTRAINT_PRIMARYKEY
		return sqliteErr.Code() == 2067 || sqliteErr.Code() == 1555
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func scanApp(row interface{ Scan(...any) error }) (*App, error) {
	var a App
	err := row.Scan(&a.PackageName, &a.Name, &a.Description, &a.IconKey, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan app: %w", err)
	}
	return &a, nil
}

func getApp(ctx context.Context, q querier, packageName string) (*App, error) {
	row := q.QueryRowContext(ctx,
		`SELECT package_name, name, description, icon_path, created_at, updated_at
		 FROM apps WHERE package_name = ?`, packageName)
	return scanApp(row)
}

// GetApp returns the app with the given package name, or ErrNotFound.
func (s *Store) GetApp(ctx context.Context, packageName string) (*App, error) {
	return getApp(ctx, s.db, packageName)
}

// ListApps returns every app ordered by display name.
func (s *Store) ListApps(ctx context.Context) ([]App, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT package_name, name, description, icon_path, created_at, updated_at
		 FROM apps ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query apps: %w", err)
	}
	defer rows.Close()

	var apps []App
	for rows.Next() {
		var a App
		if err := rows.Scan(&a.PackageName, &a.Name, &a.Description, &a.IconKey, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func scanVersions(rows *sql.Rows) ([]Version, error) {
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.PackageName, &v.VersionCode, &v.VersionName,
			&v.APKKey, &v.Size, &v.SHA256, &v.MinSDK, &v.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GetVersions returns every version of a package, newest version code first.
func (s *Store) GetVersions(ctx context.Context, packageName string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, package_name, version_code, version_name, apk_path, size, sha256, min_sdk, uploaded_at
		 FROM app_versions WHERE package_name = ? ORDER BY version_code DESC`, packageName)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	return scanVersions(rows)
}

// GetLatestVersion returns the version with the highest version code, or
// ErrNotFound when the package has no versions.
func (s *Store) GetLatestVersion(ctx context.Context, packageName string) (*Version, error) {
	var v Version
	err := s.db.QueryRowContext(ctx,
		`SELECT id, package_name, version_code, version_name, apk_path, size, sha256, min_sdk, uploaded_at
		 FROM app_versions WHERE package_name = ? ORDER BY version_code DESC LIMIT 1`, packageName).
		Scan(&v.ID, &v.PackageName, &v.VersionCode, &v.VersionName, &v.APKKey, &v.Size, &v.SHA256, &v.MinSDK, &v.UploadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query latest version: %w", err)
	}
	return &v, nil
}

func versionExists(ctx context.Context, q querier, packageName string, versionCode int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM app_versions WHERE package_name = ? AND version_code = ?`,
		packageName, versionCode).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check version existence: %w", err)
	}
	return n > 0, nil
}

// VersionExists reports whether (packageName, versionCode) is already present.
func (s *Store) VersionExists(ctx context.Context, packageName string, versionCode int64) (bool, error) {
	return versionExists(ctx, s.db, packageName, versionCode)
}

// CountApps returns the number of apps in the catalog.
func (s *Store) CountApps(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM apps`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count apps: %w", err)
	}
	return n, nil
}

// CountVersions returns the total number of versions across all apps.
func (s *Store) CountVersions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM app_versions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count versions: %w", err)
	}
	return n, nil
}

func insertApp(ctx context.Context, q querier, packageName, name string, description, iconKey *string) error {
	ts := now()
	_, err := q.ExecContext(ctx,
		`INSERT INTO apps (package_name, name, description, icon_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		packageName, name, description, iconKey, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert app: %w", err)
	}
	return nil
}

// updateApp applies only the supplied fields. An omitted field is never
// overwritten with NULL. updated_at is always refreshed.
func updateApp(ctx context.Context, q querier, packageName string, name, description, iconKey *string) error {
	set := []string{"updated_at = ?"}
	args := []any{now()}

	if name != nil {
		set = append(set, "name = ?")
		args = append(args, *name)
	}
	if description != nil {
		set = append(set, "description = ?")
		args = append(args, *description)
	}
	if iconKey != nil {
		set = append(set, "icon_path = ?")
		args = append(args, *iconKey)
	}
	args = append(args, packageName)

	res, err := q.ExecContext(ctx,
		`UPDATE apps SET `+strings.Join(set, ", ")+` WHERE package_name = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update app: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func insertVersion(ctx context.Context, q querier, v *Version) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO app_versions (package_name, version_code, version_name, apk_path, size, sha256, min_sdk, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.PackageName, v.VersionCode, v.VersionName, v.APKKey, v.Size, v.SHA256, v.MinSDK, now())
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return nil
}

func deleteApp(ctx context.Context, q querier, packageName string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM apps WHERE package_name = ?`, packageName); err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	return nil
}

func deleteVersion(ctx context.Context, q querier, packageName string, versionCode int64) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM app_versions WHERE package_name = ? AND version_code = ?`,
		packageName, versionCode)
	if err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}
	return nil
}

// InsertApp inserts a new app row.
func (s *Store) InsertApp(ctx context.Context, packageName, name string, description, iconKey *string) error {
	return insertApp(ctx, s.db, packageName, name, description, iconKey)
}

// UpdateApp partially updates an app row; nil fields are left untouched.
func (s *Store) UpdateApp(ctx context.Context, packageName string, name, description, iconKey *string) error {
	return updateApp(ctx, s.db, packageName, name, description, iconKey)
}

// InsertVersion inserts a new version row.
func (s *Store) InsertVersion(ctx context.Context, v *Version) error {
	return insertVersion(ctx, s.db, v)
}

// DeleteApp removes an app; versions cascade via the foreign key.
func (s *Store) DeleteApp(ctx context.Context, packageName string) error {
	return deleteApp(ctx, s.db, packageName)
}

// DeleteVersion removes a single version row.
func (s *Store) DeleteVersion(ctx context.Context, packageName string, versionCode int64) error {
	return deleteVersion(ctx, s.db, packageName, versionCode)
}
