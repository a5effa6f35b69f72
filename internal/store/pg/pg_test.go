package pg

import (
	"context"
	"os"
	"testing"

	"github.com/sitebook/sitebook/internal/store"
	"github.com/sitebook/sitebook/internal/store/storetest"
)

// TestConformance needs a disposable database; every subtest truncates the
// documents table.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("SITEBOOK_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("SITEBOOK_TEST_POSTGRES_URL not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := Open(ctx, dsn, nil)
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		if _, err := s.db.Exec(ctx, `TRUNCATE documents`); err != nil {
			t.Fatalf("failed to truncate: %v", err)
		}
		return s
	})
}

func TestOpen_BadDSN(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz", nil); err == nil {
		t.Fatal("Open() accepted a malformed dsn")
	}
}
