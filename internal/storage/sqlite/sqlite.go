package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
	"github.com/Diffusion-planet/ip-to-portrait/internal/storage"
	"github.com/Diffusion-planet/ip-to-portrait/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	// MaxEntries bounds the table, defaults to storage.MaxLocalEntries.
	// Inserts beyond it drop the oldest non-favorite entries.
	MaxEntries int
	Logger     log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = storage.MaxLocalEntries
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db         *sql.DB
	maxEntries int
	logger     log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, maxEntries: cfg.MaxEntries, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateEntry inserts a new history entry and trims the oldest non-favorite
// entries beyond the configured maximum.
func (r *Repository) CreateEntry(ctx context.Context, e model.HistoryEntry) error {
	resultURLs, err := json.Marshal(e.ResultURLs)
	if err != nil {
		return fmt.Errorf("could not encode result urls: %w", err)
	}
	params, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("could not encode params: %w", err)
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO history_entries (
			id, title,
			face_image_id, face_image_url,
			reference_image_id, reference_image_url,
			result_urls, params,
			count, parallel, favorite,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		e.ID,
		e.Title,
		e.FaceImageID,
		e.FaceImageURL,
		e.ReferenceImageID,
		e.ReferenceImageURL,
		string(resultURLs),
		string(params),
		e.Count,
		e.Parallel,
		e.Favorite,
		createdAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: history_entries.") {
			return fmt.Errorf("entry already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert entry: %w", err)
	}

	if err := r.trim(ctx); err != nil {
		return fmt.Errorf("could not trim old entries: %w", err)
	}

	r.logger.Debugf("Created history entry in repository: %s", e.ID)
	return nil
}

// trim drops the oldest non-favorite entries beyond the maximum.
func (r *Repository) trim(ctx context.Context) error {
	query := `
		DELETE FROM history_entries
		WHERE favorite = 0 AND id NOT IN (
			SELECT id FROM history_entries
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`
	_, err := r.db.ExecContext(ctx, query, r.maxEntries)
	return err
}

// ListEntries returns entries newest first.
func (r *Repository) ListEntries(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	query := `
		SELECT
			id, title,
			face_image_id, face_image_url,
			reference_image_id, reference_image_url,
			result_urls, params,
			count, parallel, favorite,
			created_at
		FROM history_entries
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("could not query entries: %w", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		entry, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// GetEntry retrieves an entry by ID.
func (r *Repository) GetEntry(ctx context.Context, id string) (*model.HistoryEntry, error) {
	query := `
		SELECT
			id, title,
			face_image_id, face_image_url,
			reference_image_id, reference_image_url,
			result_urls, params,
			count, parallel, favorite,
			created_at
		FROM history_entries
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, query, id)
	entry, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query entry: %w", err)
	}

	return &entry, nil
}

// DeleteEntry deletes an entry.
func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM history_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted history entry from repository: %s", id)
	return nil
}

// UpdateEntryTitle renames an entry.
func (r *Repository) UpdateEntryTitle(ctx context.Context, id, title string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE history_entries SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("could not update entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
	}

	return nil
}

// ToggleEntryFavorite flips the favorite flag and returns the new value.
func (r *Repository) ToggleEntryFavorite(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE history_entries SET favorite = NOT favorite WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("could not update entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return false, fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
	}

	var favorite bool
	err = r.db.QueryRowContext(ctx, `SELECT favorite FROM history_entries WHERE id = ?`, id).Scan(&favorite)
	if err != nil {
		return false, fmt.Errorf("could not query entry: %w", err)
	}

	return favorite, nil
}

// ClearEntries removes all entries, optionally keeping favorites.
func (r *Repository) ClearEntries(ctx context.Context, keepFavorites bool) error {
	query := `DELETE FROM history_entries`
	if keepFavorites {
		query += ` WHERE favorite = 0`
	}

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("could not clear entries: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanRow(s scanner) (model.HistoryEntry, error) {
	var entry model.HistoryEntry
	var resultURLs, params string
	var createdAt int64

	err := s.Scan(
		&entry.ID,
		&entry.Title,
		&entry.FaceImageID,
		&entry.FaceImageURL,
		&entry.ReferenceImageID,
		&entry.ReferenceImageURL,
		&resultURLs,
		&params,
		&entry.Count,
		&entry.Parallel,
		&entry.Favorite,
		&createdAt,
	)
	if err != nil {
		return entry, err
	}

	if err := json.Unmarshal([]byte(resultURLs), &entry.ResultURLs); err != nil {
		return entry, fmt.Errorf("could not decode result urls: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &entry.Params); err != nil {
		return entry, fmt.Errorf("could not decode params: %w", err)
	}
	entry.CreatedAt = time.Unix(createdAt, 0).UTC()

	return entry, nil
}
