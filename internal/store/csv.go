package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Columns ImportCSV understands. The first four are required.
var (
	requiredImportColumns = []string{"question", "answer", "score", "justification"}
	optionalImportColumns = []string{"rubric", "context"}
)

// ImportCSV loads evaluations from a CSV file with a header row and returns
// the number of rows added. Rows without a rubric are stored as "general".
func (s *Store) ImportCSV(ctx context.Context, path string) (int64, error) {
	source := fmt.Sprintf("read_csv_auto(%s, header = true)", sqlLiteral(path))

	present, err := s.csvColumns(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	var missing []string
	for _, c := range requiredImportColumns {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return 0, fmt.Errorf("import %s: missing columns %s", path, strings.Join(missing, ", "))
	}

	col := func(name string) string { return quoteIdent(present[name]) }
	rubric := "'general'"
	if _, ok := present["rubric"]; ok {
		rubric = fmt.Sprintf("COALESCE(NULLIF(lower(trim(CAST(%s AS VARCHAR))), ''), 'general')", col("rubric"))
	}
	contextExpr := "NULL"
	if _, ok := present["context"]; ok {
		contextExpr = fmt.Sprintf("NULLIF(trim(CAST(%s AS VARCHAR)), '')", col("context"))
	}

	query := fmt.Sprintf(`
		INSERT INTO evaluations (`+columns+`)
		SELECT
			CAST(uuid() AS VARCHAR),
			%s,
			CAST(%s AS VARCHAR),
			CAST(%s AS VARCHAR),
			%s,
			CAST(%s AS DOUBLE),
			COALESCE(CAST(%s AS VARCHAR), ''),
			NULL,
			NULL,
			?,
			NULL,
			?
		FROM %s`,
		rubric, col("question"), col("answer"), contextExpr, col("score"), col("justification"), source)

	res, err := s.db.ExecContext(ctx, query, "import", s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	return n, nil
}

// csvColumns maps lower-cased column names of source to their spelling in the file.
func (s *Store) csvColumns(ctx context.Context, source string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+source+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	known := map[string]bool{}
	for _, c := range append(requiredImportColumns, optionalImportColumns...) {
		known[c] = true
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if known[key] {
			out[key] = n
		}
	}
	return out, nil
}

// ExportCSV writes every record to path, oldest first, with a header row.
func (s *Store) ExportCSV(ctx context.Context, path string) error {
	query := fmt.Sprintf(`COPY (SELECT %s FROM evaluations ORDER BY created_at, id) TO %s (HEADER, DELIMITER ',')`,
		columns, sqlLiteral(path))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM evaluations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count evaluations: %w", err)
	}
	return n.Int64, nil
}

func sqlLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
