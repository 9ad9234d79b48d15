package snapshot

import (
	"fmt"
	"time"
)

// Snapshot is the complete result of one audit pass over a database.
// It is built once by the extractor and read-only for both renderers.
type Snapshot struct {
	ServerVersion string    `yaml:"server_version"`
	DatabaseName  string    `yaml:"database_name"`
	DatabaseSize  string    `yaml:"database_size"`
	GeneratedAt   time.Time `yaml:"generated_at"`

	Tables      []Table           `yaml:"tables"`
	Views       []View            `yaml:"views,omitempty"`
	ForeignKeys []ForeignKey      `yaml:"foreign_keys,omitempty"`
	Functions   []Function        `yaml:"functions,omitempty"`
	Triggers    []Trigger         `yaml:"triggers,omitempty"`
	Samples     map[string]Sample `yaml:"samples,omitempty"`
}

// Table represents a user table.
type Table struct {
	Schema      string       `yaml:"schema"`
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	RowEstimate int64        `yaml:"row_estimate"`
	Size        string       `yaml:"size"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`
}

// FullName returns the schema-qualified table name.
func (t Table) FullName() string {
	return t.Schema + "." + t.Name
}

// Column represents a table or view column.
type Column struct {
	Name         string `yaml:"name"`
	DataType     string `yaml:"data_type"`
	IsPrimaryKey bool   `yaml:"is_primary_key,omitempty"`
	IsForeignKey bool   `yaml:"is_foreign_key,omitempty"`
	Ref          *Ref   `yaml:"references,omitempty"`
}

// Ref is the target of a foreign key column.
type Ref struct {
	Schema     string `yaml:"schema"`
	Table      string `yaml:"table"`
	Column     string `yaml:"column"`
	Constraint string `yaml:"constraint"`
}

// View represents a view or materialized view.
type View struct {
	Schema       string     `yaml:"schema"`
	Name         string     `yaml:"name"`
	Materialized bool       `yaml:"materialized,omitempty"`
	Columns      []Column   `yaml:"columns"`
	Definition   string     `yaml:"definition"`
	Description  string     `yaml:"description,omitempty"`
	RowEstimate  int64      `yaml:"row_estimate"`
	Size         string     `yaml:"size"`
	Dependencies []Relation `yaml:"dependencies,omitempty"`
}

// FullName returns the schema-qualified view name.
func (v View) FullName() string {
	return v.Schema + "." + v.Name
}

// TypeLabel returns the human-readable relation kind.
func (v View) TypeLabel() string {
	if v.Materialized {
		return "Materialized View"
	}
	return "View"
}

// Relation identifies a table, view, or materialized view by qualified name.
type Relation struct {
	Schema string `yaml:"schema"`
	Name   string `yaml:"name"`
}

// FullName returns the schema-qualified relation name.
func (r Relation) FullName() string {
	return r.Schema + "." + r.Name
}

// ForeignKey is a directed edge from a table column to a referenced column.
type ForeignKey struct {
	Schema        string `yaml:"schema"`
	Table         string `yaml:"table"`
	Column        string `yaml:"column"`
	ForeignSchema string `yaml:"foreign_schema"`
	ForeignTable  string `yaml:"foreign_table"`
	ForeignColumn string `yaml:"foreign_column"`
	Constraint    string `yaml:"constraint"`
}

// Function is a user-defined routine.
type Function struct {
	Schema     string `yaml:"schema"`
	Name       string `yaml:"name"`
	Args       string `yaml:"args"`
	ReturnType string `yaml:"return_type"`
	Definition string `yaml:"definition"`
}

// Signature returns the full callable signature for headings.
func (f Function) Signature() string {
	return fmt.Sprintf("%s.%s(%s) -> %s", f.Schema, f.Name, f.Args, f.ReturnType)
}

// Trigger is a table trigger.
type Trigger struct {
	Name   string `yaml:"name"`
	Schema string `yaml:"schema"`
	Table  string `yaml:"table"`
	Action string `yaml:"action"`
}

// Sample is a bounded set of rows from one table. Columns preserve the
// select-list order; values are pre-formatted. A table whose sampling failed
// has an empty Sample under its key, never a missing key.
type Sample struct {
	Columns []string   `yaml:"columns,omitempty"`
	Rows    [][]string `yaml:"rows,omitempty"`
}

// Empty reports whether the sample holds no rows.
func (s Sample) Empty() bool {
	return len(s.Rows) == 0
}

// Summary returns a human-readable summary of the snapshot.
func (s *Snapshot) Summary() string {
	var totalCols, totalFKs int
	var totalRows int64
	for _, t := range s.Tables {
		totalCols += len(t.Columns)
		totalFKs += len(t.ForeignKeys)
		totalRows += t.RowEstimate
	}
	return fmt.Sprintf(
		"Found %d tables (%d columns, %d foreign keys), %d views, %d functions, %d triggers\nEstimated rows: %d, database size: %s",
		len(s.Tables), totalCols, totalFKs, len(s.Views), len(s.Functions), len(s.Triggers),
		totalRows, s.DatabaseSize,
	)
}
