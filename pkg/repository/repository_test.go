package repository

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/lib/pq"
	"github.com/tendant/simple-accounts/pkg/domain"
	"github.com/tendant/simple-accounts/pkg/repository/migrations"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "accounts", Password: "p@ss word", DBName: "accounts"}

	got := cfg.DSN()
	want := "postgres://accounts:p%40ss%20word@db:5432/accounts?sslmode=disable"
	if got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	cfg.SSLMode = "require"
	if !strings.HasSuffix(cfg.DSN(), "sslmode=require") {
		t.Errorf("DSN() = %q, want sslmode=require", cfg.DSN())
	}
}

func TestListFilter(t *testing.T) {
	tests := []struct {
		name      string
		q         domain.AccountQuery
		wantWhere string
		wantArgs  []any
	}{
		{name: "none", q: domain.AccountQuery{}, wantWhere: "", wantArgs: nil},
		{
			name:      "role",
			q:         domain.AccountQuery{Role: domain.RoleAdmin},
			wantWhere: "WHERE role = $1",
			wantArgs:  []any{domain.RoleAdmin},
		},
		{
			name:      "all",
			q:         domain.AccountQuery{Role: domain.RoleUser, Status: domain.StatusActive, Search: "50%_off"},
			wantWhere: "WHERE role = $1 AND status = $2 AND (name ILIKE $3 OR email ILIKE $3)",
			wantArgs:  []any{domain.RoleUser, domain.StatusActive, `%50\%\_off%`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := listFilter(tt.q)
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %#v, want %#v", args, tt.wantArgs)
			}
		})
	}
}

func TestPrefixed(t *testing.T) {
	got := prefixed("a", "id, name,\n\temail")
	if got != "a.id, a.name, a.email" {
		t.Errorf("prefixed() = %q", got)
	}
	if !strings.HasPrefix(prefixed("a", accountColumns), "a.id, a.name, ") {
		t.Errorf("prefixed(accountColumns) = %q", prefixed("a", accountColumns))
	}
}

func TestUpSection(t *testing.T) {
	content := "-- header\n-- +migrate Up\nCREATE TABLE t (id INT);\n-- +migrate Down\nDROP TABLE t;\n"
	if got := strings.TrimSpace(upSection(content)); got != "CREATE TABLE t (id INT);" {
		t.Errorf("upSection() = %q", got)
	}
	if got := upSection("SELECT 1;"); got != "SELECT 1;" {
		t.Errorf("upSection(no markers) = %q", got)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	var names []string
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	if len(names) < 3 {
		t.Fatalf("found %d migrations, want at least 3", len(names))
	}

	all := fstest.MapFS{}
	for _, name := range names {
		b, err := migrations.FS.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}
		all[name] = &fstest.MapFile{Data: b}
		if strings.Contains(upSection(string(b)), "DROP TABLE") {
			t.Errorf("%s: up section drops tables", name)
		}
	}
	for _, table := range requiredTables {
		found := false
		for _, f := range all {
			if strings.Contains(string(f.Data), "CREATE TABLE IF NOT EXISTS "+table+" ") {
				found = true
			}
		}
		if !found {
			t.Errorf("no migration creates %s", table)
		}
	}
}

func TestPQErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})
	fk := &pq.Error{Code: "23503"}

	if !isUniqueViolation(unique) || isUniqueViolation(fk) {
		t.Error("isUniqueViolation misclassified")
	}
	if !isForeignKeyViolation(fk) || isForeignKeyViolation(unique) {
		t.Error("isForeignKeyViolation misclassified")
	}
	if isUniqueViolation(errors.New("boom")) || isUniqueViolation(nil) {
		t.Error("non-pq errors are not unique violations")
	}
}
