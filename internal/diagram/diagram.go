// Package diagram serializes a snapshot into a Graphviz DOT entity
// relationship diagram and optionally rasterizes it with the external dot
// binary.
package diagram

import (
	"errors"
	"fmt"
	"html"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/T-6891/pgXRay/internal/snapshot"
)

// Generator emits the ER diagram for one snapshot.
type Generator struct {
	tables  []snapshot.Table
	views   []snapshot.View
	fks     []snapshot.ForeignKey
	schemas []string
}

// New builds a Generator. The schema set is the union of all table and view
// schemas, sorted for deterministic output.
func New(s *snapshot.Snapshot) *Generator {
	seen := make(map[string]bool)
	for _, t := range s.Tables {
		seen[t.Schema] = true
	}
	for _, v := range s.Views {
		seen[v.Schema] = true
	}
	schemas := make([]string, 0, len(seen))
	for name := range seen {
		schemas = append(schemas, name)
	}
	sort.Strings(schemas)

	return &Generator{
		tables:  s.Tables,
		views:   s.Views,
		fks:     s.ForeignKeys,
		schemas: schemas,
	}
}

// DOT returns the diagram as Graphviz dot-language text. Output is
// deterministic for a fixed snapshot: schemas are sorted and nodes and edges
// follow snapshot order.
func (g *Generator) DOT() string {
	var b strings.Builder

	b.WriteString("digraph ER {\n")
	b.WriteString("  graph [rankdir=LR, fontname=\"Helvetica\", fontsize=12, pad=\"0.5\", nodesep=\"0.5\", ranksep=\"1.5\"];\n")
	b.WriteString("  node [shape=plain, fontname=\"Helvetica\", fontsize=10];\n")
	b.WriteString("  edge [arrowhead=crow, arrowtail=none, dir=both, fontname=\"Helvetica\", fontsize=9, penwidth=1.0];\n\n")

	for _, schema := range g.schemas {
		fmt.Fprintf(&b, "  subgraph \"cluster_%s\" {\n", schema)
		fmt.Fprintf(&b, "    label=\"Schema: %s\";\n", schema)
		b.WriteString("    style=\"filled\";\n")
		b.WriteString("    color=\"#EEEEEE\";\n")
		b.WriteString("    fontname=\"Helvetica-Bold\";\n")
		b.WriteString("    fontsize=12;\n")

		for _, t := range g.tables {
			if t.Schema == schema {
				fmt.Fprintf(&b, "    %q [label=%s];\n", t.FullName(), tableLabel(t))
			}
		}
		for _, v := range g.views {
			if v.Schema == schema {
				fmt.Fprintf(&b, "    %q [label=%s, style=\"dashed\"];\n", v.FullName(), viewLabel(v))
			}
		}

		b.WriteString("  }\n\n")
	}

	for _, fk := range g.fks {
		src := fk.Schema + "." + fk.Table
		dst := fk.ForeignSchema + "." + fk.ForeignTable
		fmt.Fprintf(&b, "  %q -> %q [label=%q, fontname=\"Helvetica\", fontsize=8, ", src, dst, fk.Constraint)
		b.WriteString("color=\"#5D8AA8\", style=\"solid\", arrowhead=normal, arrowtail=crow];\n")
	}

	for _, v := range g.views {
		for _, dep := range v.Dependencies {
			fmt.Fprintf(&b, "  %q -> %q [style=\"dashed\", arrowhead=\"vee\", color=\"#7B8B6F\"];\n",
				v.FullName(), dep.FullName())
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func tableLabel(t snapshot.Table) string {
	var rows strings.Builder
	for _, c := range t.Columns {
		pk := "<TD></TD>"
		if c.IsPrimaryKey {
			pk = `<TD BGCOLOR="#E0FFE0"><B>PK</B></TD>`
		}
		fk := "<TD></TD>"
		if c.IsForeignKey {
			fk = `<TD BGCOLOR="#E0E0FF"><B>FK</B></TD>`
		}
		fmt.Fprintf(&rows, `<TR><TD ALIGN="LEFT">%s</TD><TD ALIGN="LEFT">%s</TD>%s%s</TR>`,
			html.EscapeString(c.Name), html.EscapeString(c.DataType), pk, fk)
		rows.WriteString("\n")
	}

	return fmt.Sprintf(`<
      <TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0" CELLPADDING="4">
        <TR><TD COLSPAN="4" BGCOLOR="#4D7A97"><FONT COLOR="white"><B>%s</B></FONT></TD></TR>
        <TR>
          <TD BGCOLOR="#EEEEFF"><B>Column</B></TD>
          <TD BGCOLOR="#EEEEFF"><B>Type</B></TD>
          <TD BGCOLOR="#EEEEFF"><B>PK</B></TD>
          <TD BGCOLOR="#EEEEFF"><B>FK</B></TD>
        </TR>
        %s</TABLE>
    >`, html.EscapeString(t.FullName()), rows.String())
}

func viewLabel(v snapshot.View) string {
	var rows strings.Builder
	for _, c := range v.Columns {
		fmt.Fprintf(&rows, `<TR><TD ALIGN="LEFT">%s</TD><TD ALIGN="LEFT">%s</TD></TR>`,
			html.EscapeString(c.Name), html.EscapeString(c.DataType))
		rows.WriteString("\n")
	}

	return fmt.Sprintf(`<
      <TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0" CELLPADDING="4">
        <TR><TD COLSPAN="2" BGCOLOR="#6A8759"><FONT COLOR="white"><B>%s</B> (%s)</FONT></TD></TR>
        <TR>
          <TD BGCOLOR="#EEEEFF"><B>Column</B></TD>
          <TD BGCOLOR="#EEEEFF"><B>Type</B></TD>
        </TR>
        %s</TABLE>
    >`, html.EscapeString(v.FullName()), v.TypeLabel(), rows.String())
}

// WriteDOT writes the diagram to the given path.
func (g *Generator) WriteDOT(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(g.DOT()), 0o644); err != nil {
		return fmt.Errorf("writing DOT file: %w", err)
	}
	return nil
}

// RenderPNG rasterizes the DOT file with the Graphviz dot binary. A missing
// binary or a failed run returns a descriptive error; callers treat it as a
// warning since the DOT file is already valid output.
func (g *Generator) RenderPNG(dotPath, pngPath string) error {
	cmd := exec.Command("dot", "-Tpng", "-Gdpi=300", dotPath, "-o", pngPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("graphviz dot binary not found in PATH (install graphviz to get PNG output): %w", err)
		}
		return fmt.Errorf("rendering PNG: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
