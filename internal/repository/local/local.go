// Package local persists the client's address book and chat list in a SQLite
// file next to the user.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"keychat/internal/cryptographic/pki"
	"keychat/internal/model"

	_ "modernc.org/sqlite"
)

const busyTimeoutMs = 5000

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+filepath.Clean(abs))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS contacts (
		nickname TEXT PRIMARY KEY,
		public_key TEXT NOT NULL UNIQUE
	)`)
	if err != nil {
		return fmt.Errorf("create contacts table: %w", err)
	}

	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS chat_peers (
		chat_id TEXT NOT NULL,
		public_key TEXT NOT NULL,
		PRIMARY KEY (chat_id, public_key)
	)`)
	if err != nil {
		return fmt.Errorf("create chat_peers table: %w", err)
	}
	return nil
}

// LoadAddressBook builds an AddressBook from every stored contact.
func (s *Store) LoadAddressBook(ctx context.Context) (*model.AddressBook, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT nickname, public_key FROM contacts`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		var name, key string
		if err := rows.Scan(&name, &key); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		pk, err := pki.PublicKeyFromHex(key)
		if err != nil {
			return nil, fmt.Errorf("contact %q: %w", name, err)
		}
		contacts = append(contacts, model.Contact{Nickname: name, PublicKey: pk})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return model.NewAddressBook(contacts...)
}

func (s *Store) PutContact(ctx context.Context, c model.Contact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (nickname, public_key) VALUES (?, ?)`,
		c.Nickname, c.PublicKey.String())
	if err != nil {
		return fmt.Errorf("insert contact %q: %w", c.Nickname, err)
	}
	return nil
}

func (s *Store) DeleteContact(ctx context.Context, nickname string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE nickname = ?`, nickname)
	if err != nil {
		return fmt.Errorf("delete contact %q: %w", nickname, err)
	}
	return nil
}

func (s *Store) LoadChats(ctx context.Context) (*model.Chats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, public_key FROM chat_peers ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	members := make(map[string][]pki.PublicKey)
	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("scan chat peer: %w", err)
		}
		pk, err := pki.PublicKeyFromHex(key)
		if err != nil {
			return nil, fmt.Errorf("chat %s: %w", id, err)
		}
		members[id] = append(members[id], pk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chats := model.NewChats()
	for id, peers := range members {
		c, err := model.NewChat(peers...)
		if err != nil {
			return nil, fmt.Errorf("chat %s: %w", id, err)
		}
		if c.ID() != id {
			return nil, fmt.Errorf("chat %s: stored id does not match its peers", id)
		}
		chats.Add(c)
	}
	return chats, nil
}

// PutChat stores c, replacing any chat with the same id.
func (s *Store) PutChat(ctx context.Context, c *model.Chat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_peers WHERE chat_id = ?`, c.ID()); err != nil {
		return fmt.Errorf("clear chat %s: %w", c.ID(), err)
	}
	for _, pk := range c.Peers() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_peers (chat_id, public_key) VALUES (?, ?)`,
			c.ID(), pk.String()); err != nil {
			return fmt.Errorf("insert chat peer: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteChat(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_peers WHERE chat_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	return nil
}
