package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/T-6891/pgXRay/internal/snapshot"
)

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a|b*c", `a\|b\*c`},
		{"plain text without specials", "plain text without specials"},
		{"under_score", `under\_score`},
		{"[link](x)", `\[link\]\(x\)`},
		{"a-b.c!", `a\-b\.c\!`},
		{"#+`", "\\#\\+\\`"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := EscapeMarkdown(tt.in); got != tt.want {
			t.Errorf("EscapeMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func usersSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ServerVersion: "16.3",
		DatabaseName:  "shop",
		DatabaseSize:  "8 MB",
		GeneratedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Tables: []snapshot.Table{
			{
				Schema: "public", Name: "users",
				RowEstimate: 2, Size: "16 kB",
				Columns: []snapshot.Column{
					{Name: "id", DataType: "integer", IsPrimaryKey: true},
					{Name: "name", DataType: "text"},
				},
			},
		},
		Samples: map[string]snapshot.Sample{
			"public.users": {
				Columns: []string{"id", "name"},
				Rows:    [][]string{{"1", "Alice"}, {"2", "Bob"}},
			},
		},
	}
}

func TestRender_SingleTable(t *testing.T) {
	md := string(Render(usersSnapshot(), "er_diagram.dot", "er_diagram.png"))

	if !strings.Contains(md, "# Audit Report: `shop`") {
		t.Error("missing title with database name")
	}
	if !strings.Contains(md, "- PostgreSQL: **16.3**") {
		t.Error("missing server version")
	}
	if !strings.Contains(md, "- Tables: **1**") {
		t.Error("missing table count")
	}
	if !strings.Contains(md, "### public.users") {
		t.Error("missing table heading")
	}
	if !strings.Contains(md, "| id | integer | PK |  |") {
		t.Error("missing PK column row")
	}
	if !strings.Contains(md, "| name | text |  |  |") {
		t.Error("missing plain column row")
	}
	if !strings.Contains(md, "| id | name |") {
		t.Error("missing sample header")
	}
	if !strings.Contains(md, "| 1 | Alice |") || !strings.Contains(md, "| 2 | Bob |") {
		t.Error("missing sample rows")
	}
	if !strings.Contains(md, "No views found.") {
		t.Error("missing empty-views marker")
	}
	if !strings.Contains(md, "No triggers found.") {
		t.Error("missing empty-triggers marker")
	}
	if !strings.Contains(md, "- DOT: `er_diagram.dot`") || !strings.Contains(md, "- PNG: `er_diagram.png`") {
		t.Error("missing ER diagram paths")
	}
}

func TestRender_EmptySample(t *testing.T) {
	s := usersSnapshot()
	s.Samples["public.users"] = snapshot.Sample{}

	md := string(Render(s, "d.dot", "d.png"))

	if !strings.Contains(md, "No data sample.\n") {
		t.Error("empty sample must render the literal No data sample. line")
	}
	// No header or separator row may be emitted for an empty sample.
	sampleSection := md[strings.Index(md, "#### Sample Data"):]
	if strings.Contains(sampleSection, "| ---- |") {
		t.Error("empty sample must not emit a table separator row")
	}
}

func TestRender_MissingSampleKey(t *testing.T) {
	s := usersSnapshot()
	s.Samples = nil

	md := string(Render(s, "d.dot", "d.png"))
	if !strings.Contains(md, "No data sample.") {
		t.Error("absent sample map entry must render as empty sample")
	}
}

func TestRender_ForeignKeyColumn(t *testing.T) {
	s := usersSnapshot()
	s.Tables = append(s.Tables, snapshot.Table{
		Schema: "public", Name: "orders",
		Columns: []snapshot.Column{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{
				Name: "user_id", DataType: "integer", IsForeignKey: true,
				Ref: &snapshot.Ref{Schema: "public", Table: "users", Column: "id", Constraint: "orders_user_id_fkey"},
			},
		},
	})

	md := string(Render(s, "d.dot", "d.png"))
	if !strings.Contains(md, `| user\_id | integer | FK | public\.users\.id |`) {
		t.Error("missing escaped FK column row with reference")
	}
}

func TestRender_PrimaryAndForeignKey(t *testing.T) {
	s := &snapshot.Snapshot{
		DatabaseName: "x",
		Tables: []snapshot.Table{{
			Schema: "public", Name: "t",
			Columns: []snapshot.Column{{
				Name: "id", DataType: "integer",
				IsPrimaryKey: true, IsForeignKey: true,
				Ref: &snapshot.Ref{Schema: "public", Table: "u", Column: "id", Constraint: "c"},
			}},
		}},
	}
	md := string(Render(s, "d.dot", "d.png"))
	if !strings.Contains(md, "| id | integer | PK FK |") {
		t.Error("column that is both PK and FK must render as PK FK")
	}
}

func TestRender_EscapesSampleCells(t *testing.T) {
	s := usersSnapshot()
	s.Samples["public.users"] = snapshot.Sample{
		Columns: []string{"payload"},
		Rows:    [][]string{{"a|b*c"}},
	}

	md := string(Render(s, "d.dot", "d.png"))
	if !strings.Contains(md, `| a\|b\*c |`) {
		t.Error("sample cell values must be escaped")
	}
}

func TestRender_Views(t *testing.T) {
	s := usersSnapshot()
	s.Views = []snapshot.View{
		{
			Schema: "public", Name: "active_users", Materialized: false,
			Columns:     []snapshot.Column{{Name: "id", DataType: "integer"}},
			Definition:  "SELECT id FROM users WHERE active;",
			Description: "only active accounts",
			RowEstimate: 1, Size: "8 kB",
			Dependencies: []snapshot.Relation{{Schema: "public", Name: "users"}},
		},
		{
			Schema: "public", Name: "user_stats", Materialized: true,
			Columns:    []snapshot.Column{{Name: "total", DataType: "bigint"}},
			Definition: "SELECT count(*) AS total FROM users;",
		},
	}

	md := string(Render(s, "d.dot", "d.png"))
	if !strings.Contains(md, "### public.active_users (View)") {
		t.Error("missing plain view heading")
	}
	if !strings.Contains(md, "### public.user_stats (Materialized View)") {
		t.Error("missing materialized view heading")
	}
	if !strings.Contains(md, `*only active accounts*`) {
		t.Error("missing view description")
	}
	if !strings.Contains(md, `- public\.users`) {
		t.Error("missing escaped dependency entry")
	}
	if !strings.Contains(md, "No direct dependencies found.") {
		t.Error("missing empty-dependency marker for second view")
	}
	if !strings.Contains(md, "```sql\nSELECT id FROM users WHERE active;\n```") {
		t.Error("view definition must be verbatim in a fenced block")
	}
}

func TestRender_FunctionsAndTriggers(t *testing.T) {
	s := usersSnapshot()
	s.Functions = []snapshot.Function{{
		Schema: "public", Name: "touch", Args: "uid integer", ReturnType: "void",
		Definition: "CREATE OR REPLACE FUNCTION public.touch(uid integer)...",
	}}
	s.Triggers = []snapshot.Trigger{{
		Name: "users_touch", Schema: "public", Table: "users",
		Action: "EXECUTE FUNCTION touch(NEW.id)",
	}}

	md := string(Render(s, "d.dot", "d.png"))
	if !strings.Contains(md, "### public.touch(uid integer) -> void") {
		t.Error("missing function signature heading")
	}
	if !strings.Contains(md, "### users_touch ON public.users") {
		t.Error("missing trigger heading")
	}
	if !strings.Contains(md, "```sql\nEXECUTE FUNCTION touch(NEW.id)\n```") {
		t.Error("trigger action must be verbatim in a fenced block")
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "report.md")

	if err := Write(usersSnapshot(), path, "d.dot", "d.png"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report back: %v", err)
	}
	if !strings.Contains(string(data), "# Audit Report: `shop`") {
		t.Error("written report missing title")
	}
}
