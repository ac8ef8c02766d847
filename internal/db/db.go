package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		// users is owned by the auth service; created here only so the
		// chat core can run standalone in dev.
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            middle_name TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS group_rooms (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS group_members (
            group_id INT NOT NULL REFERENCES group_rooms(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            PRIMARY KEY(group_id, user_id)
        );`,
		// participants are stored with user1_id < user2_id so the pair
		// lookup is order-independent and the UNIQUE holds.
		`CREATE TABLE IF NOT EXISTS private_rooms (
            id SERIAL PRIMARY KEY,
            user1_id INT NOT NULL,
            user2_id INT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(user1_id, user2_id),
            CHECK (user1_id < user2_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            sender_id INT NOT NULL,
            room_type TEXT NOT NULL CHECK (room_type IN ('group', 'private')),
            group_id INT REFERENCES group_rooms(id) ON DELETE CASCADE,
            private_id INT REFERENCES private_rooms(id) ON DELETE CASCADE,
            body TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            read BOOLEAN NOT NULL DEFAULT FALSE,
            pinned BOOLEAN NOT NULL DEFAULT FALSE,
            reply_to INT REFERENCES messages(id) ON DELETE SET NULL,
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            deleted_by INT,
            CHECK (
                (room_type = 'group' AND group_id IS NOT NULL AND private_id IS NULL) OR
                (room_type = 'private' AND private_id IS NOT NULL AND group_id IS NULL)
            )
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_group ON messages (group_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_private ON messages (private_id, created_at);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
