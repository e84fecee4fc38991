package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{Path: "data/stocks.db", JournalMode: "WAL", ForeignKeys: true})
	for _, want := range []string{"data/stocks.db?", "_journal_mode=WAL", "_fk=1"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
	if got := buildDSN(ClientConfig{Path: ":memory:", JournalMode: "WAL"}); got != ":memory:" {
		t.Fatalf("unexpected in-memory dsn %q", got)
	}
}

func TestClientTableExists(t *testing.T) {
	c, err := NewClient(WithPath(filepath.Join(t.TempDir(), "t.db")))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	ok, err := c.TableExists(ctx, "bars")
	if err != nil || ok {
		t.Fatalf("expected no table, got %v err=%v", ok, err)
	}
	if err := c.InitSchema(ctx, []string{"CREATE TABLE IF NOT EXISTS bars (x INTEGER)"}); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	if ok, _ := c.TableExists(ctx, "bars"); !ok {
		t.Fatalf("expected table to exist")
	}
}

func TestNewClientRequiresPath(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without path")
	}
}
