package snapshot

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		ServerVersion: "16.3",
		DatabaseName:  "shop",
		DatabaseSize:  "8 MB",
		GeneratedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Tables: []Table{{
			Schema: "public", Name: "users",
			RowEstimate: 42, Size: "16 kB",
			Columns: []Column{
				{Name: "id", DataType: "integer", IsPrimaryKey: true},
				{Name: "group_id", DataType: "integer", IsForeignKey: true,
					Ref: &Ref{Schema: "public", Table: "groups", Column: "id", Constraint: "users_group_id_fkey"}},
			},
			ForeignKeys: []ForeignKey{{
				Schema: "public", Table: "users", Column: "group_id",
				ForeignSchema: "public", ForeignTable: "groups", ForeignColumn: "id",
				Constraint: "users_group_id_fkey",
			}},
		}},
		Views: []View{{
			Schema: "public", Name: "stats", Materialized: true,
			Columns:    []Column{{Name: "total", DataType: "bigint"}},
			Definition: "SELECT count(*) AS total FROM users;",
		}},
		Functions: []Function{{Schema: "public", Name: "f", Args: "x integer", ReturnType: "void", Definition: "..."}},
		Triggers:  []Trigger{{Name: "trg", Schema: "public", Table: "users", Action: "EXECUTE FUNCTION f(1)"}},
		Samples: map[string]Sample{
			"public.users": {Columns: []string{"id", "group_id"}, Rows: [][]string{{"1", "7"}}},
		},
	}
}

func TestFullNames(t *testing.T) {
	s := testSnapshot()
	if got := s.Tables[0].FullName(); got != "public.users" {
		t.Errorf("Table.FullName = %q", got)
	}
	if got := s.Views[0].FullName(); got != "public.stats" {
		t.Errorf("View.FullName = %q", got)
	}
	if got := (Relation{Schema: "a", Name: "b"}).FullName(); got != "a.b" {
		t.Errorf("Relation.FullName = %q", got)
	}
}

func TestViewTypeLabel(t *testing.T) {
	if got := (View{Materialized: true}).TypeLabel(); got != "Materialized View" {
		t.Errorf("TypeLabel = %q", got)
	}
	if got := (View{}).TypeLabel(); got != "View" {
		t.Errorf("TypeLabel = %q", got)
	}
}

func TestFunctionSignature(t *testing.T) {
	f := Function{Schema: "public", Name: "touch", Args: "uid integer", ReturnType: "void"}
	want := "public.touch(uid integer) -> void"
	if got := f.Signature(); got != want {
		t.Errorf("Signature = %q, want %q", got, want)
	}
}

func TestSampleEmpty(t *testing.T) {
	if !(Sample{}).Empty() {
		t.Error("zero Sample must be empty")
	}
	if (Sample{Columns: []string{"a"}, Rows: [][]string{{"1"}}}).Empty() {
		t.Error("sample with rows must not be empty")
	}
	// A sample may know its columns yet hold no rows.
	if !(Sample{Columns: []string{"a"}}).Empty() {
		t.Error("sample without rows must be empty")
	}
}

func TestSummary(t *testing.T) {
	got := testSnapshot().Summary()
	for _, want := range []string{"1 tables", "2 columns", "1 foreign keys", "1 views", "1 functions", "1 triggers", "8 MB"} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary missing %q in %q", want, got)
		}
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "snapshot.yaml")

	s := testSnapshot()
	if err := s.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	loaded, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}

	if loaded.DatabaseName != "shop" || loaded.ServerVersion != "16.3" {
		t.Errorf("database info lost: %+v", loaded)
	}
	if len(loaded.Tables) != 1 || len(loaded.Tables[0].Columns) != 2 {
		t.Fatalf("tables lost: %+v", loaded.Tables)
	}
	col := loaded.Tables[0].Columns[1]
	if !col.IsForeignKey || col.Ref == nil || col.Ref.Table != "groups" {
		t.Errorf("FK reference lost: %+v", col)
	}
	if len(loaded.Views) != 1 || !loaded.Views[0].Materialized {
		t.Errorf("views lost: %+v", loaded.Views)
	}
	sample, ok := loaded.Samples["public.users"]
	if !ok || len(sample.Rows) != 1 || sample.Columns[1] != "group_id" {
		t.Errorf("samples lost: %+v", loaded.Samples)
	}
}

func TestLoadYAMLMissingFile(t *testing.T) {
	if _, err := LoadYAML(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
