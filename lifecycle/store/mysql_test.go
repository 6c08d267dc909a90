package store

import (
	"os"
	"testing"
)

// TestMySQLStore runs the journal contract against a real database.
//
// Set TEST_MYSQL_DSN to run it, for example:
//
//	export TEST_MYSQL_DSN="user:password@tcp(localhost:3306)/lifecycle_test"
func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL integration test: Set TEST_MYSQL_DSN environment variable to run")
	}

	testStoreContract(t, func(t *testing.T) Store {
		s, err := NewMySQLStore(dsn)
		if err != nil {
			t.Fatalf("NewMySQLStore: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewMySQLStore_InvalidDSN(t *testing.T) {
	if _, err := NewMySQLStore("not a dsn"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}
