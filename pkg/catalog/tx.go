package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx exposes the write operations scoped to a single atomic unit. The
// upload pipeline uses it for the app-plus-version multi-row write.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise (including on panic or when the
// context is cancelled mid-statement).
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetApp returns an app within the transaction.
func (t *Tx) GetApp(ctx context.Context, packageName string) (*App, error) {
	return getApp(ctx, t.tx, packageName)
}

// VersionExists checks version presence within the transaction.
func (t *Tx) VersionExists(ctx context.Context, packageName string, versionCode int64) (bool, error) {
	return versionExists(ctx, t.tx, packageName, versionCode)
}

// InsertApp inserts a new app row within the transaction.
func (t *Tx) InsertApp(ctx context.Context, packageName, name string, description, iconKey *string) error {
	return insertApp(ctx, t.tx, packageName, name, description, iconKey)
}

// UpdateApp partially updates an app row within the transaction.
func (t *Tx) UpdateApp(ctx context.Context, packageName string, name, description, iconKey *string) error {
	return updateApp(ctx, t.tx, packageName, name, description, iconKey)
}

// InsertVersion inserts a version row within the transaction.
func (t *Tx) InsertVersion(ctx context.Context, v *Version) error {
	return insertVersion(ctx, t.tx, v)
}

// DeleteApp removes an app row (and its versions) within the transaction.
func (t *Tx) DeleteApp(ctx context.Context, packageName string) error {
	return deleteApp(ctx, t.tx, packageName)
}

// DeleteVersion removes a version row within the transaction.
func (t *Tx) DeleteVersion(ctx context.Context, packageName string, versionCode int64) error {
	return deleteVersion(ctx, t.tx, packageName, versionCode)
}
