package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Column describes one reflected column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ForeignKey is one local-column/referenced-column pair, in declared order.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// Table is the reflected structure of one table.
type Table struct {
	Columns     []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primary_key"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// Schema is the full reflected database structure handed to the SQL
// generator and exposed on the schema endpoint.
type Schema struct {
	Tables map[string]Table `json:"tables"`
}

// InspectSchema reflects the live connection into a normalized Schema.
// Results are never cached: the schema can change between calls, so every
// request reflects what the connection reports right now.
func InspectSchema(ctx context.Context, b *Binding) (Schema, error) {
	switch b.Engine {
	case EnginePostgreSQL:
		return inspectPostgres(ctx, b.Handle)
	case EngineMySQL:
		return inspectMySQL(ctx, b.Handle)
	case EngineSQLite:
		return inspectSQLite(ctx, b.Handle)
	default:
		return Schema{}, fmt.Errorf("unsupported database engine: %s", b.Engine)
	}
}

func inspectPostgres(ctx context.Context, handle *sql.DB) (Schema, error) {
	schema := Schema{Tables: make(map[string]Table)}

	names, err := queryStrings(ctx, handle,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
	if err != nil {
		return Schema{}, fmt.Errorf("failed to list tables: %w", err)
	}

	for _, name := range names {
		table := Table{PrimaryKey: []string{}, ForeignKeys: []ForeignKey{}}

		rows, err := handle.QueryContext(ctx,
			`SELECT column_name, data_type, is_nullable FROM information_schema.columns
			 WHERE table_schema = 'public' AND table_name = $1
			 ORDER BY ordinal_position`, name)
		if err != nil {
			return Schema{}, fmt.Errorf("failed to reflect columns of %s: %w", name, err)
		}
		for rows.Next() {
			var col Column
			var nullable string
			if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
				rows.Close()
				return Schema{}, err
			}
			col.Nullable = strings.EqualFold(nullable, "YES")
			table.Columns = append(table.Columns, col)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return Schema{}, err
		}

		pk, err := queryStrings(ctx, handle,
			`SELECT kc.column_name
			 FROM information_schema.table_constraints tc
			 JOIN information_schema.key_column_usage kc ON tc.constraint_name = kc.constraint_name
			 WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'PRIMARY KEY'
			 ORDER BY kc.ordinal_position`, name)
		if err != nil {
			return Schema{}, fmt.Errorf("failed to reflect primary key of %s: %w", name, err)
		}
		table.PrimaryKey = pk

		fkRows, err := handle.QueryContext(ctx,
			`SELECT kcu.column_name, ccu.table_name, ccu.column_name
			 FROM information_schema.table_constraints tc
			 JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name
			 JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name
			 WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'FOREIGN KEY'
			 ORDER BY kcu.ordinal_position`, name)
		if err != nil {
			return Schema{}, fmt.Errorf("failed to reflect foreign keys of %s: %w", name, err)
		}
		for fkRows.Next() {
			var fk ForeignKey
			if err := fkRows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
				fkRows.Close()
				return Schema{}, err
			}
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}
		fkRows.Close()
		if err := fkRows.Err(); err != nil {
			return Schema{}, err
		}

		schema.Tables[name] = table
	}
	return schema, nil
}

func inspectMySQL(ctx context.Context, handle *sql.DB) (Schema, error) {
	schema := Schema{Tables: make(map[string]Table)}

	names, err := queryStrings(ctx, handle,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
	if err != nil {
		return Schema{}, fmt.Errorf("failed to list tables: %w", err)
	}

	for _, name := range names {
		table := Table{PrimaryKey: []string{}, ForeignKeys: []ForeignKey{}}

		rows, err := handle.QueryContext(ctx,
			`SELECT column_name, data_type, is_nullable FROM information_schema.columns
			 WHERE table_schema = DATABASE() AND table_name = ?
			 ORDER BY ordinal_position`, name)
		if err != nil {
			return Schema{}, fmt.Errorf("failed to reflect columns of %s: %w", name, err)
		}
		for rows.Next() {
			var col Column
			var nullable string
			if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
				rows.Close()
				return Schema{}, err
			}
			col.Nullable = strings.EqualFold(nullable, "YES")
			table.Columns = append(table.Columns, col)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return Schema{}, err
		}

		pk, err := queryStrings(ctx, handle,
			`SELECT column_name FROM information_schema.key_column_usage
			 WHERE table_schema = DATABASE() AND table_name = ? AND constraint_name = 'PRIMARY'
			 ORDER BY ordinal_position`, name)
		if err != nil {
			return Schema{}, fmt.Errorf("failed to reflect primary key of %s: %w", name, err)
		}
		table.PrimaryKey = pk

		fkRows, err := handle.QueryContext(ctx,
			`SELECT column_name, referenced_table_name, referenced_column_name
			 FROM information_schema.key_column_usage
			 WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL
			 ORDER BY ordinal_position`, name)
		if err != nil {
			return Schema{}, fmt.Errorf("failed to reflect foreign keys of %s: %w", name, err)
		}
		for fkRows.Next() {
			var fk ForeignKey
			if err := fkRows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
				fkRows.Close()
				return Schema{}, err
			}
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}
		fkRows.Close()
		if err := fkRows.Err(); err != nil {
			return Schema{}, err
		}

		schema.Tables[name] = table
	}
	return schema, nil
}

func inspectSQLite(ctx context.Context, handle *sql.DB) (Schema, error) {
	schema := Schema{Tables: make(map[string]Table)}

	names, err := queryStrings(ctx, handle,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`)
	if err != nil {
		return Schema{}, fmt.Errorf("failed to list tables: %w", err)
	}

	for _, name := range names {
		table := Table{PrimaryKey: []string{}, ForeignKeys: []ForeignKey{}}

		// PRAGMA arguments cannot be bound; the name comes from
		// sqlite_master, not user input.
		rows, err := handle.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", name))
		if err != nil {
			return Schema{}, fmt.Errorf("failed to reflect columns of %s: %w", name, err)
		}
		type pkCol struct {
			name string
			pos  int
		}
		var pkCols []pkCol
		for rows.Next() {
			var (
				cid     int
				colName string
				colType string
				notNull int
				dflt    sql.NullString
				pk      int
			)
			if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
				rows.Close()
				return Schema{}, err
			}
			table.Columns = append(table.Columns, Column{
				Name:     colName,
				Type:     colType,
				Nullable: notNull == 0,
			})
			if pk > 0 {
				pkCols = append(pkCols, pkCol{name: colName, pos: pk})
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return Schema{}, err
		}

		for pos := 1; pos <= len(pkCols); pos++ {
			for _, c := range pkCols {
				if c.pos == pos {
					table.PrimaryKey = append(table.PrimaryKey, c.name)
				}
			}
		}

		fkRows, err := handle.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", name))
		if err != nil {
			return Schema{}, fmt.Errorf("failed to reflect foreign keys of %s: %w", name, err)
		}
		for fkRows.Next() {
			var (
				id, seq         int
				refTable, from  string
				to              sql.NullString
				onUpdate        string
				onDelete, match string
			)
			if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
				fkRows.Close()
				return Schema{}, err
			}
			table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
				Column:    from,
				RefTable:  refTable,
				RefColumn: to.String,
			})
		}
		fkRows.Close()
		if err := fkRows.Err(); err != nil {
			return Schema{}, err
		}

		schema.Tables[name] = table
	}
	return schema, nil
}

func queryStrings(ctx context.Context, handle *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := handle.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
