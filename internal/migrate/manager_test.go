package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	cases := map[string]struct {
		sql  string
		want int
	}{
		"two statements":      {"create table a(x int); create table b(y int);", 2},
		"semicolon in string": {"insert into t(v) values ('a;b'); select 1;", 2},
		"trailing fragment":   {"select 1; select 2", 2},
		"empty":               {"", 0},
		"whitespace only":     {"  \n\t ", 0},
	}
	for name, tc := range cases {
		got := splitStatements(tc.sql)
		if len(got) != tc.want {
			t.Errorf("%s: got %d statements (%q), want %d", name, len(got), got, tc.want)
		}
	}
}

func TestCollectSQLOrdersByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_second.up.sql", "0001_first.up.sql", "0001_first.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	files, err := collectSQL(dir, ".up.sql")
	if err != nil {
		t.Fatalf("collectSQL: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].Base != "0001_first.up.sql" || files[1].Base != "0002_second.up.sql" {
		t.Fatalf("wrong order: %v", files)
	}
}

func TestCollectSQLMissingDir(t *testing.T) {
	files, err := collectSQL(filepath.Join(t.TempDir(), "absent"), ".sql")
	if err != nil {
		t.Fatalf("collectSQL: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %v", files)
	}
}
