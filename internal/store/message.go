package store

// AppendMessage inserts a message unless its dedup key already exists.
// Existing rows are never touched, so re-appending the same snapshot
// is a no-op and insertion order is first-seen order. Reports whether
// a row was inserted.
func (db *DB) AppendMessage(m *Message) (bool, error) {
	res, err := db.Exec(`
		INSERT OR IGNORE INTO messages (chat_id, msg_id, content, kind, timestamp, outbound, delivered, media_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ChatID, m.MsgID, m.Content, m.Kind, m.Timestamp, m.Outbound, m.Delivered, m.MediaRef)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasMessage reports whether a message with the given dedup key exists
// in the chat's sequence.
func (db *DB) HasMessage(chatID, msgID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ? AND msg_id = ?`, chatID, msgID).Scan(&n)
	return n > 0, err
}

// ListMessages returns a chat's messages in first-seen insertion order.
func (db *DB) ListMessages(chatID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT seq, chat_id, msg_id, content, kind, timestamp, outbound, delivered, media_ref
		FROM messages
		WHERE chat_id = ?
		ORDER BY seq ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Seq, &m.ChatID, &m.MsgID, &m.Content, &m.Kind, &m.Timestamp, &m.Outbound, &m.Delivered, &m.MediaRef); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the number of messages held for a chat.
func (db *DB) MessageCount(chatID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&n)
	return n, err
}
