// Package report renders a snapshot as a Markdown audit report.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/T-6891/pgXRay/internal/snapshot"
)

// escaper backslash-escapes every Markdown-significant character. Applied
// independently to each interpolated field so sample data or identifiers
// cannot corrupt table structure. Fenced code blocks stay verbatim.
var escaper = strings.NewReplacer(
	"|", `\|`,
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"(", `\(`,
	")", `\)`,
	"#", `\#`,
	"+", `\+`,
	"-", `\-`,
	".", `\.`,
	"!", `\!`,
)

// EscapeMarkdown escapes Markdown-significant characters in a field value.
func EscapeMarkdown(s string) string {
	return escaper.Replace(s)
}

// Write renders the report and writes it to mdPath. The dot and png paths
// are referenced in the ER Diagram section.
func Write(s *snapshot.Snapshot, mdPath, dotPath, pngPath string) error {
	if dir := filepath.Dir(mdPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	if err := os.WriteFile(mdPath, Render(s, dotPath, pngPath), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Render returns the Markdown report for a snapshot.
func Render(s *snapshot.Snapshot, dotPath, pngPath string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Audit Report: `%s`\n", s.DatabaseName)
	fmt.Fprintf(&b, "*Generated: %s*\n\n", s.GeneratedAt.Format("2006-01-02 15:04:05"))

	b.WriteString("## General Info\n")
	fmt.Fprintf(&b, "- PostgreSQL: **%s**\n", s.ServerVersion)
	fmt.Fprintf(&b, "- DB Size: **%s**\n", s.DatabaseSize)
	fmt.Fprintf(&b, "- Tables: **%d**\n", len(s.Tables))
	fmt.Fprintf(&b, "- Views: **%d**\n\n", len(s.Views))

	b.WriteString("## Tables & Sample Data\n")
	for _, t := range s.Tables {
		writeTable(&b, t, s.Samples[t.FullName()])
	}

	b.WriteString("## Views\n")
	if len(s.Views) > 0 {
		for _, v := range s.Views {
			writeView(&b, v)
		}
	} else {
		b.WriteString("No views found.\n")
	}

	b.WriteString("## ER Diagram\n")
	fmt.Fprintf(&b, "- DOT: `%s`  \n", dotPath)
	fmt.Fprintf(&b, "- PNG: `%s`  \n\n", pngPath)

	b.WriteString("## Functions\n")
	for _, fn := range s.Functions {
		fmt.Fprintf(&b, "### %s\n", fn.Signature())
		fmt.Fprintf(&b, "```sql\n%s\n```\n\n", fn.Definition)
	}

	b.WriteString("## Triggers\n")
	if len(s.Triggers) > 0 {
		for _, trg := range s.Triggers {
			fmt.Fprintf(&b, "### %s ON %s.%s\n", trg.Name, trg.Schema, trg.Table)
			fmt.Fprintf(&b, "```sql\n%s\n```\n\n", trg.Action)
		}
	} else {
		b.WriteString("No triggers found.\n")
	}

	return []byte(b.String())
}

func writeTable(b *strings.Builder, t snapshot.Table, sample snapshot.Sample) {
	fmt.Fprintf(b, "### %s\n", t.FullName())
	fmt.Fprintf(b, "- Rows Estimate: `%d` | Size: `%s`\n", t.RowEstimate, t.Size)

	b.WriteString("#### Columns\n\n")
	b.WriteString("| Name | Type | Key | References |\n")
	b.WriteString("| ---- | ---- | --- | ---------- |\n")
	for _, c := range t.Columns {
		var key, references string
		if c.IsPrimaryKey {
			key = "PK"
		}
		if c.IsForeignKey {
			if key != "" {
				key += " FK"
			} else {
				key = "FK"
			}
			if c.Ref != nil {
				references = c.Ref.Schema + "." + c.Ref.Table + "." + c.Ref.Column
			}
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			EscapeMarkdown(c.Name), EscapeMarkdown(c.DataType),
			EscapeMarkdown(key), EscapeMarkdown(references))
	}

	b.WriteString("\n#### Sample Data\n\n")
	if sample.Empty() {
		b.WriteString("No data sample.\n")
	} else {
		header := make([]string, len(sample.Columns))
		separator := make([]string, len(sample.Columns))
		for i, col := range sample.Columns {
			header[i] = EscapeMarkdown(col)
			separator[i] = "----"
		}
		fmt.Fprintf(b, "| %s |\n", strings.Join(header, " | "))
		fmt.Fprintf(b, "| %s |\n", strings.Join(separator, " | "))
		for _, row := range sample.Rows {
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = EscapeMarkdown(cell)
			}
			fmt.Fprintf(b, "| %s |\n", strings.Join(cells, " | "))
		}
	}
	b.WriteString("\n")
}

func writeView(b *strings.Builder, v snapshot.View) {
	fmt.Fprintf(b, "### %s (%s)\n", v.FullName(), v.TypeLabel())
	if v.Description != "" {
		fmt.Fprintf(b, "*%s*\n\n", EscapeMarkdown(v.Description))
	}
	fmt.Fprintf(b, "- Rows Estimate: `%d`\n", v.RowEstimate)
	fmt.Fprintf(b, "- Size: `%s`\n\n", v.Size)

	b.WriteString("#### Columns\n\n")
	b.WriteString("| Name | Type |\n")
	b.WriteString("| ---- | ---- |\n")
	for _, c := range v.Columns {
		fmt.Fprintf(b, "| %s | %s |\n", EscapeMarkdown(c.Name), EscapeMarkdown(c.DataType))
	}

	b.WriteString("\n#### Dependencies\n\n")
	if len(v.Dependencies) > 0 {
		for _, dep := range v.Dependencies {
			fmt.Fprintf(b, "- %s\n", EscapeMarkdown(dep.FullName()))
		}
	} else {
		b.WriteString("No direct dependencies found.\n")
	}

	b.WriteString("\n#### Definition\n")
	fmt.Fprintf(b, "```sql\n%s\n```\n\n", v.Definition)
}
