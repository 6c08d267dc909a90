package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store, for journals shared
// by several processes.
//
// The DSN format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Never hardcode credentials; read the DSN from the environment:
//
//	dsn := os.Getenv("LIFECYCLE_JOURNAL_DSN")
//	journal, err := store.NewMySQLStore(dsn)
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore connects to the database at dsn and creates the journal
// tables if they do not exist.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := execAll(ctx, db, mysqlSchema...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &MySQLStore{
		sqlStore: &sqlStore{
			db: db,
			upsertSummary: `
				INSERT INTO pass_summaries (pass_id, status, phases, errors, error, duration_ns, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON DUPLICATE KEY UPDATE
					status = VALUES(status),
					phases = VALUES(phases),
					errors = VALUES(errors),
					error = VALUES(error),
					duration_ns = VALUES(duration_ns),
					completed_at = VALUES(completed_at)
			`,
		},
	}, nil
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS pass_completions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		pass_id VARCHAR(64) NOT NULL,
		seq BIGINT NOT NULL,
		stage VARCHAR(64) NOT NULL,
		element_id VARCHAR(255) NOT NULL,
		path TEXT NOT NULL,
		successors INT NOT NULL,
		duration_ns BIGINT NOT NULL,
		completed_at BIGINT NOT NULL,
		INDEX idx_pass_id (pass_id),
		UNIQUE KEY unique_pass_seq (pass_id, seq)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS pass_summaries (
		pass_id VARCHAR(64) PRIMARY KEY,
		status VARCHAR(32) NOT NULL,
		phases INT NOT NULL,
		errors INT NOT NULL,
		error TEXT NOT NULL,
		duration_ns BIGINT NOT NULL,
		completed_at BIGINT NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}
