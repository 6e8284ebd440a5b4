// Package store keeps the evaluation history in DuckDB and answers the
// questions people ask about it: which rows got a given score, how scores
// are distributed, which justifications mention a phrase.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

// schemaDDL holds the DuckDB schema definition.
//
//go:embed schema.sql
var schemaDDL string

const columns = `id, rubric, question, answer, context, score, justification,
	question_improvement, answer_improvement, provider, model, created_at`

// Store is a DuckDB-backed evaluation history. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at dsn and applies the
// schema. An empty dsn or ":memory:" opens an in-memory database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == ":memory:" {
		dsn = ""
	}
	if dsn != "" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds rec. Empty ID and zero CreatedAt are filled in; the stored
// record is returned.
func (s *Store) Insert(ctx context.Context, rec model.EvaluationRecord) (model.EvaluationRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluations (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Rubric, rec.Question, rec.Answer, nullable(rec.Context), rec.Score, rec.Justification,
		nullable(rec.QuestionImprovement), nullable(rec.AnswerImprovement), rec.Provider, rec.Model, rec.CreatedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("insert evaluation: %w", err)
	}
	return rec, nil
}

// AttachImprovement stores suggestions on the most recent evaluation of the
// same question and answer. It reports whether such a row existed.
func (s *Store) AttachImprovement(ctx context.Context, question, answer string, imp model.ImprovementResult) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE evaluations
		SET question_improvement = ?, answer_improvement = ?
		WHERE id = (
			SELECT id FROM evaluations
			WHERE question = ? AND answer = ?
			ORDER BY created_at DESC
			LIMIT 1
		)`,
		nullable(imp.QuestionImprovement), nullable(imp.AnswerImprovement), question, answer,
	)
	if err != nil {
		return false, fmt.Errorf("attach improvement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attach improvement: %w", err)
	}
	return n > 0, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (*model.EvaluationRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM evaluations WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evaluation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("not found")

// Filter selects records in Query. Zero fields do not filter.
type Filter struct {
	Score                 *float64
	Rubric                string
	JustificationContains string // case-insensitive substring
	Limit                 int
}

// Query returns matching records, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]model.EvaluationRecord, error) {
	var where []string
	var args []any
	if f.Score != nil {
		where = append(where, "score = ?")
		args = append(args, *f.Score)
	}
	if f.Rubric != "" {
		where = append(where, "rubric = ?")
		args = append(args, f.Rubric)
	}
	if f.JustificationContains != "" {
		where = append(where, "contains(lower(justification), lower(?))")
		args = append(args, f.JustificationContains)
	}

	query := `SELECT ` + columns + ` FROM evaluations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var out []model.EvaluationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	return out, nil
}

// Summary holds aggregate score statistics.
type Summary struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summary aggregates scores, optionally for one rubric only. An empty
// store yields a zero Summary.
func (s *Store) Summary(ctx context.Context, rubric string) (Summary, error) {
	query := `SELECT COUNT(*), AVG(score), MIN(score), MAX(score) FROM evaluations`
	var args []any
	if rubric != "" {
		query += ` WHERE rubric = ?`
		args = append(args, rubric)
	}
	var (
		sum          Summary
		mean, lo, hi sql.NullFloat64
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum.Count, &mean, &lo, &hi); err != nil {
		return Summary{}, fmt.Errorf("summarize evaluations: %w", err)
	}
	sum.Mean, sum.Min, sum.Max = mean.Float64, lo.Float64, hi.Float64
	return sum, nil
}

// Bucket is one bar of the score histogram.
type Bucket struct {
	Score float64 `json:"score"`
	Count int64   `json:"count"`
}

// ScoreDistribution counts records per distinct score, ascending.
func (s *Store) ScoreDistribution(ctx context.Context, rubric string) ([]Bucket, error) {
	query := `SELECT score, COUNT(*) FROM evaluations`
	var args []any
	if rubric != "" {
		query += ` WHERE rubric = ?`
		args = append(args, rubric)
	}
	query += ` GROUP BY score ORDER BY score`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("score distribution: %w", err)
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Score, &b.Count); err != nil {
			return nil, fmt.Errorf("score distribution: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.EvaluationRecord, error) {
	var (
		rec                 model.EvaluationRecord
		ctxText, qImp, aImp sql.NullString
		provider, modelName sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Rubric, &rec.Question, &rec.Answer, &ctxText, &rec.Score,
		&rec.Justification, &qImp, &aImp, &provider, &modelName, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan evaluation: %w", err)
	}
	rec.Context = fromNull(ctxText)
	rec.QuestionImprovement = fromNull(qImp)
	rec.AnswerImprovement = fromNull(aImp)
	rec.Provider = provider.String
	rec.Model = modelName.String
	return &rec, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
