// Package extract orchestrates catalog lookups into a snapshot.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/T-6891/pgXRay/internal/db"
	"github.com/T-6891/pgXRay/internal/snapshot"
)

// DefaultSampleLimit bounds the number of rows sampled per table.
const DefaultSampleLimit = 10

// Extractor reads the database catalogs and assembles a Snapshot.
type Extractor struct {
	conn        *db.Conn
	log         *slog.Logger
	sampleLimit int
}

// New creates an Extractor. A non-positive sampleLimit falls back to
// DefaultSampleLimit.
func New(conn *db.Conn, logger *slog.Logger, sampleLimit int) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}
	return &Extractor{conn: conn, log: logger, sampleLimit: sampleLimit}
}

// Snapshot runs the full extraction pass. Samples depend on tables being
// populated first; the remaining lookups are independent but run
// sequentially on the single connection.
func (e *Extractor) Snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	s := &snapshot.Snapshot{GeneratedAt: time.Now()}

	var err error
	if s.ServerVersion, s.DatabaseName, s.DatabaseSize, err = e.DatabaseInfo(ctx); err != nil {
		return nil, fmt.Errorf("reading database info: %w", err)
	}
	if s.Tables, err = e.Tables(ctx); err != nil {
		return nil, fmt.Errorf("reading tables: %w", err)
	}
	s.Samples = e.Samples(ctx, s.Tables)
	if s.ForeignKeys, err = e.ForeignKeys(ctx); err != nil {
		return nil, fmt.Errorf("reading foreign keys: %w", err)
	}
	if s.Functions, err = e.Functions(ctx); err != nil {
		return nil, fmt.Errorf("reading functions: %w", err)
	}
	if s.Triggers, err = e.Triggers(ctx); err != nil {
		return nil, fmt.Errorf("reading triggers: %w", err)
	}
	if s.Views, err = e.Views(ctx); err != nil {
		return nil, fmt.Errorf("reading views: %w", err)
	}
	return s, nil
}

// DatabaseInfo returns the server version, current database name, and
// human-readable database size.
func (e *Extractor) DatabaseInfo(ctx context.Context) (version, name, size string, err error) {
	if err = e.conn.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", "", "", fmt.Errorf("server version: %w", err)
	}
	if err = e.conn.QueryRow(ctx, "SELECT current_database()").Scan(&name); err != nil {
		return "", "", "", fmt.Errorf("database name: %w", err)
	}
	if err = e.conn.QueryRow(ctx,
		"SELECT pg_size_pretty(pg_database_size(current_database()))").Scan(&size); err != nil {
		return "", "", "", fmt.Errorf("database size: %w", err)
	}
	return version, name, size, nil
}

// Tables lists all user tables ordered by (schema, name), each with its row
// estimate, on-disk size, ordered columns, and outgoing foreign keys.
func (e *Extractor) Tables(ctx context.Context) ([]snapshot.Table, error) {
	rows, err := e.conn.Query(ctx, `
		SELECT schemaname, tablename
		FROM pg_catalog.pg_tables
		WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
		ORDER BY schemaname, tablename`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []snapshot.Table
	for rows.Next() {
		var t snapshot.Table
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tables {
		if err := e.fillTable(ctx, &tables[i]); err != nil {
			return nil, fmt.Errorf("table %s: %w", tables[i].FullName(), err)
		}
	}
	return tables, nil
}

func (e *Extractor) fillTable(ctx context.Context, t *snapshot.Table) error {
	// The qualified name is read from the catalog above; the regclass cast
	// happens server-side on a plain parameter.
	qualified := db.QualifiedName(t.Schema, t.Name)
	if err := e.conn.QueryRow(ctx,
		"SELECT reltuples::bigint FROM pg_class WHERE oid = $1::regclass", qualified,
	).Scan(&t.RowEstimate); err != nil {
		return fmt.Errorf("row estimate: %w", err)
	}
	if err := e.conn.QueryRow(ctx,
		"SELECT pg_size_pretty(pg_total_relation_size($1::regclass))", qualified,
	).Scan(&t.Size); err != nil {
		return fmt.Errorf("relation size: %w", err)
	}

	cols, err := e.tableColumns(ctx, t.Schema, t.Name)
	if err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	t.Columns = cols

	fks, err := e.tableForeignKeys(ctx, t.Schema, t.Name)
	if err != nil {
		return fmt.Errorf("foreign keys: %w", err)
	}
	t.ForeignKeys = fks

	// Linear scan over the per-table FK list; both lists are small at
	// catalog scale.
	for i := range t.Columns {
		for _, fk := range t.ForeignKeys {
			if t.Columns[i].Name == fk.Column {
				t.Columns[i].IsForeignKey = true
				t.Columns[i].Ref = &snapshot.Ref{
					Schema:     fk.ForeignSchema,
					Table:      fk.ForeignTable,
					Column:     fk.ForeignColumn,
					Constraint: fk.Constraint,
				}
			}
		}
	}
	return nil
}

func (e *Extractor) tableColumns(ctx context.Context, schema, table string) ([]snapshot.Column, error) {
	rows, err := e.conn.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			k.column_name IS NOT NULL AS is_primary_key
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = $1
			  AND tc.table_name = $2
		) k ON c.column_name = k.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []snapshot.Column
	for rows.Next() {
		var c snapshot.Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsPrimaryKey); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (e *Extractor) tableForeignKeys(ctx context.Context, schema, table string) ([]snapshot.ForeignKey, error) {
	rows, err := e.conn.Query(ctx, `
		SELECT
			kcu.column_name,
			ccu.table_schema AS foreign_table_schema,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name,
			tc.constraint_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []snapshot.ForeignKey
	for rows.Next() {
		fk := snapshot.ForeignKey{Schema: schema, Table: table}
		if err := rows.Scan(&fk.Column, &fk.ForeignSchema, &fk.ForeignTable, &fk.ForeignColumn, &fk.Constraint); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// Views lists views and materialized views ordered by (schema, name), each
// with its ordered columns and dependency relations.
func (e *Extractor) Views(ctx context.Context) ([]snapshot.View, error) {
	rows, err := e.conn.Query(ctx, `
		SELECT
			n.nspname AS schema,
			c.relname AS name,
			c.relkind = 'm' AS is_materialized,
			pg_get_viewdef(c.oid) AS definition,
			obj_description(c.oid, 'pg_class') AS description,
			c.reltuples::bigint AS row_estimate,
			pg_size_pretty(pg_relation_size(c.oid)) AS size
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('v', 'm')
		  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
		ORDER BY n.nspname, c.relname`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []snapshot.View
	for rows.Next() {
		var v snapshot.View
		var description *string
		if err := rows.Scan(&v.Schema, &v.Name, &v.Materialized, &v.Definition, &description, &v.RowEstimate, &v.Size); err != nil {
			return nil, err
		}
		if description != nil {
			v.Description = *description
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range views {
		if err := e.fillView(ctx, &views[i]); err != nil {
			return nil, fmt.Errorf("view %s: %w", views[i].FullName(), err)
		}
	}
	return views, nil
}

func (e *Extractor) fillView(ctx context.Context, v *snapshot.View) error {
	rows, err := e.conn.Query(ctx, `
		SELECT
			a.attname AS column_name,
			pg_catalog.format_type(a.atttypid, a.atttypmod) AS data_type
		FROM pg_catalog.pg_attribute a
		JOIN pg_catalog.pg_class c ON a.attrelid = c.oid
		JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
		WHERE a.attnum > 0
		  AND NOT a.attisdropped
		  AND c.relname = $1
		  AND n.nspname = $2
		ORDER BY a.attnum`, v.Name, v.Schema)
	if err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c snapshot.Column
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return err
		}
		v.Columns = append(v.Columns, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	deps, err := e.conn.Query(ctx, `
		WITH RECURSIVE view_deps AS (
			SELECT DISTINCT
				cl.oid AS view_id,
				ref_ns.nspname AS ref_table_schema,
				ref.relname AS ref_table_name
			FROM pg_class cl
			JOIN pg_namespace ns ON cl.relnamespace = ns.oid
			JOIN pg_depend dep ON dep.refobjid <> cl.oid AND dep.objid = cl.oid
			JOIN pg_rewrite rw ON rw.oid = dep.objid
			JOIN pg_class ref ON ref.oid = dep.refobjid
			JOIN pg_namespace ref_ns ON ref_ns.oid = ref.relnamespace
			WHERE cl.relname = $1
			  AND ns.nspname = $2
			  AND ref.relkind IN ('r', 'v', 'm')
		)
		SELECT DISTINCT ref_table_schema, ref_table_name
		FROM view_deps
		ORDER BY ref_table_schema, ref_table_name`, v.Name, v.Schema)
	if err != nil {
		return fmt.Errorf("dependencies: %w", err)
	}
	defer deps.Close()

	for deps.Next() {
		var r snapshot.Relation
		if err := deps.Scan(&r.Schema, &r.Name); err != nil {
			return err
		}
		v.Dependencies = append(v.Dependencies, r)
	}
	return deps.Err()
}

// Samples fetches up to the configured limit of rows per table. A failed
// sample is downgraded to a warning and recorded as an empty Sample; the
// extraction continues regardless.
func (e *Extractor) Samples(ctx context.Context, tables []snapshot.Table) map[string]snapshot.Sample {
	samples := make(map[string]snapshot.Sample, len(tables))
	for _, t := range tables {
		key := t.FullName()
		sql := fmt.Sprintf("SELECT * FROM %s LIMIT %d", db.QualifiedName(t.Schema, t.Name), e.sampleLimit)
		rs, err := e.conn.FetchAll(ctx, sql)
		if err != nil {
			e.log.Warn("sampling table failed", "table", key, "error", err)
			samples[key] = snapshot.Sample{}
			continue
		}
		samples[key] = formatSample(rs)
	}
	return samples
}

func formatSample(rs *db.ResultSet) snapshot.Sample {
	s := snapshot.Sample{Columns: rs.Columns}
	for _, row := range rs.Rows {
		formatted := make([]string, len(row))
		for i, v := range row {
			formatted[i] = formatValue(v)
		}
		s.Rows = append(s.Rows, formatted)
	}
	return s
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return fmt.Sprintf("\\x%x", val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// ForeignKeys lists every foreign key constraint across the database,
// independent of per-table extraction.
func (e *Extractor) ForeignKeys(ctx context.Context) ([]snapshot.ForeignKey, error) {
	rows, err := e.conn.Query(ctx, `
		SELECT
			kcu.table_schema,
			kcu.table_name,
			kcu.column_name,
			ccu.table_schema AS foreign_table_schema,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name,
			tc.constraint_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []snapshot.ForeignKey
	for rows.Next() {
		var fk snapshot.ForeignKey
		if err := rows.Scan(&fk.Schema, &fk.Table, &fk.Column, &fk.ForeignSchema, &fk.ForeignTable, &fk.ForeignColumn, &fk.Constraint); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// Functions lists user-defined routines ordered by (schema, name).
func (e *Extractor) Functions(ctx context.Context) ([]snapshot.Function, error) {
	rows, err := e.conn.Query(ctx, `
		SELECT
			n.nspname AS schema,
			p.proname AS name,
			pg_get_function_arguments(p.oid) AS args,
			pg_get_function_result(p.oid) AS return_type,
			pg_get_functiondef(p.oid) AS definition
		FROM pg_proc p
		JOIN pg_namespace n ON p.pronamespace = n.oid
		WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
		  AND p.prokind = 'f'
		ORDER BY n.nspname, p.proname`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fns []snapshot.Function
	for rows.Next() {
		var f snapshot.Function
		if err := rows.Scan(&f.Schema, &f.Name, &f.Args, &f.ReturnType, &f.Definition); err != nil {
			return nil, err
		}
		fns = append(fns, f)
	}
	return fns, rows.Err()
}

// Triggers lists all triggers outside the system schemas.
func (e *Extractor) Triggers(ctx context.Context) ([]snapshot.Trigger, error) {
	rows, err := e.conn.Query(ctx, `
		SELECT trigger_name, event_object_schema, event_object_table, action_statement
		FROM information_schema.triggers
		WHERE trigger_schema NOT IN ('pg_catalog', 'information_schema')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trgs []snapshot.Trigger
	for rows.Next() {
		var t snapshot.Trigger
		if err := rows.Scan(&t.Name, &t.Schema, &t.Table, &t.Action); err != nil {
			return nil, err
		}
		trgs = append(trgs, t)
	}
	return trgs, rows.Err()
}
