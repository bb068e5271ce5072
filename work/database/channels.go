package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"teleloop/work/logger"
	"teleloop/work/types"
)

// SaveChannel inserts or replaces a channel. The playlist and the two small
// structured columns travel as JSON blobs; the scalar columns exist so the
// lineup can be listed without deserializing every playlist.
func (db *DB) SaveChannel(ch *types.Channel) error {
	items, err := json.Marshal(ch.Items)
	if err != nil {
		return fmt.Errorf("failed to serialize items for channel %s: %w", ch.ID, err)
	}
	sources, err := json.Marshal(ch.SourceLibraries)
	if err != nil {
		return fmt.Errorf("failed to serialize sources for channel %s: %w", ch.ID, err)
	}
	options, err := json.Marshal(ch.Options)
	if err != nil {
		return fmt.Errorf("failed to serialize options for channel %s: %w", ch.ID, err)
	}

	_, err = db.Exec(`
		INSERT INTO channels (id, name, library_key, library_type, created_at, anchor, source_libraries, options, provenance, items, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			library_key = excluded.library_key,
			library_type = excluded.library_type,
			anchor = excluded.anchor,
			source_libraries = excluded.source_libraries,
			options = excluded.options,
			provenance = excluded.provenance,
			items = excluded.items,
			updated_at = excluded.updated_at
	`, ch.ID, ch.Name, ch.LibraryKey, string(ch.LibraryType), ch.CreatedAt, ch.Anchor,
		string(sources), string(options), ch.Provenance, string(items), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save channel %s: %w", ch.ID, err)
	}
	return nil
}

// LoadChannels returns every persisted channel keyed by id. A row whose JSON
// columns fail to deserialize is skipped with a warning rather than poisoning
// the whole lineup.
func (db *DB) LoadChannels() (map[string]*types.Channel, error) {
	rows, err := db.Query(`
		SELECT id, name, library_key, library_type, created_at, anchor, source_libraries, options, provenance, items
		FROM channels
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	defer rows.Close()

	channels := make(map[string]*types.Channel)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			logger.Warn("{database/channels - LoadChannels} Skipping unreadable channel row: %v", err)
			continue
		}
		channels[ch.ID] = ch
	}
	return channels, rows.Err()
}

// LoadChannel returns one channel by id, with found false when no row exists.
func (db *DB) LoadChannel(id string) (*types.Channel, bool, error) {
	row := db.QueryRow(`
		SELECT id, name, library_key, library_type, created_at, anchor, source_libraries, options, provenance, items
		FROM channels
		WHERE id = ?
	`, id)

	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load channel %s: %w", id, err)
	}
	return ch, true, nil
}

// DeleteChannel removes a channel row; deleting an unknown id is a no-op.
func (db *DB) DeleteChannel(id string) error {
	if _, err := db.Exec("DELETE FROM channels WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete channel %s: %w", id, err)
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(s scanner) (*types.Channel, error) {
	var (
		ch          types.Channel
		libraryType string
		sources     string
		options     string
		items       string
	)
	err := s.Scan(&ch.ID, &ch.Name, &ch.LibraryKey, &libraryType, &ch.CreatedAt, &ch.Anchor, &sources, &options, &ch.Provenance, &items)
	if err != nil {
		return nil, err
	}
	ch.LibraryType = types.MediaKind(libraryType)

	if err := json.Unmarshal([]byte(sources), &ch.SourceLibraries); err != nil {
		return nil, fmt.Errorf("bad source_libraries for channel %s: %w", ch.ID, err)
	}
	if err := json.Unmarshal([]byte(options), &ch.Options); err != nil {
		return nil, fmt.Errorf("bad options for channel %s: %w", ch.ID, err)
	}
	if err := json.Unmarshal([]byte(items), &ch.Items); err != nil {
		return nil, fmt.Errorf("bad items for channel %s: %w", ch.ID, err)
	}
	return &ch, nil
}
