package store

import "database/sql"

// ReplaceChats swaps the whole chat collection for the given one in a
// single transaction. Last writer wins per id; there is no per-field
// merge with previous state.
func (db *DB) ReplaceChats(chats []Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chats`); err != nil {
		return err
	}
	for _, c := range chats {
		if _, err := tx.Exec(`
			INSERT INTO chats (id, display_name, last_message_preview, last_activity_at, unread_count, presence, last_seen_at, is_business, is_group)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				display_name = excluded.display_name,
				last_message_preview = excluded.last_message_preview,
				last_activity_at = excluded.last_activity_at,
				unread_count = excluded.unread_count,
				presence = excluded.presence,
				last_seen_at = excluded.last_seen_at,
				is_business = excluded.is_business,
				is_group = excluded.is_group`,
			c.ID, c.DisplayName, c.LastMessagePreview, c.LastActivityAt, c.UnreadCount, c.Presence, c.LastSeenAt, c.IsBusiness, c.IsGroup); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListChats returns all chats sorted by last activity descending.
func (db *DB) ListChats() ([]Chat, error) {
	rows, err := db.Query(`
		SELECT id, display_name, last_message_preview, last_activity_at, unread_count, presence, last_seen_at, is_business, is_group
		FROM chats
		ORDER BY last_activity_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.LastMessagePreview, &c.LastActivityAt, &c.UnreadCount, &c.Presence, &c.LastSeenAt, &c.IsBusiness, &c.IsGroup); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by id, or nil when absent.
func (db *DB) GetChat(id string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT id, display_name, last_message_preview, last_activity_at, unread_count, presence, last_seen_at, is_business, is_group
		FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.DisplayName, &c.LastMessagePreview, &c.LastActivityAt, &c.UnreadCount, &c.Presence, &c.LastSeenAt, &c.IsBusiness, &c.IsGroup)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatIDs returns the ids of all known chats, most recent first.
func (db *DB) ChatIDs() ([]string, error) {
	rows, err := db.Query(`SELECT id FROM chats ORDER BY last_activity_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ChatCount returns the number of chats in view state.
func (db *DB) ChatCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&n)
	return n, err
}
