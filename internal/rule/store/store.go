package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectRuleColumns = `
	id, rule_type, counterparty_inn, counterparty_name, business_operation, keyword,
	category_id, priority, confidence, is_active, origin, notes,
	hit_count, last_hit_at, created_at, updated_at
`

func scanRule(s scanner) (*rule.Rule, error) {
	var r rule.Rule

	var typ, origin string

	var inn, name, operation, keyword, notes sql.NullString

	if err := s.Scan(
		&r.ID, &typ, &inn, &name, &operation, &keyword,
		&r.CategoryID, &r.Priority, &r.Confidence, &r.IsActive, &origin, &notes,
		&r.HitCount, &r.LastHitAt, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m, err := rule.NewMatch(rule.Type(typ), rule.Fields{
		CounterpartyINN:   nullable(inn),
		CounterpartyName:  nullable(name),
		BusinessOperation: nullable(operation),
		Keyword:           nullable(keyword),
	})
	if err != nil {
		return nil, fmt.Errorf("rule %d: %w", r.ID, err)
	}

	r.Match = m
	r.Origin = rule.Origin(origin)
	r.Notes = notes.String

	return &r, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}

	return &s.String
}

func (s *Store) GetRule(ctx context.Context, id int64) (*rule.Rule, error) {
	query := `SELECT ` + selectRuleColumns + ` FROM categorization_rules WHERE id = $1`

	r, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rule.ErrNotFound
		}

		return nil, fmt.Errorf("getting rule: %w", err)
	}

	return r, nil
}

func (s *Store) ListRules(ctx context.Context, filter rule.ListFilter) ([]*rule.Rule, error) {
	return listRules(ctx, s.db, filter)
}

func listRules(ctx context.Context, q querier, filter rule.ListFilter) ([]*rule.Rule, error) {
	query := `SELECT ` + selectRuleColumns + ` FROM categorization_rules WHERE 1 = 1`

	var args []any

	argIdx := 1

	if filter.ActiveOnly {
		query += " AND is_active"
	}

	if filter.CategoryID != nil {
		query += fmt.Sprintf(" AND category_id = $%d", argIdx)

		args = append(args, *filter.CategoryID)
		argIdx++
	}

	if filter.Origin != nil {
		query += fmt.Sprintf(" AND origin = $%d", argIdx)

		args = append(args, *filter.Origin)
	}

	query += " ORDER BY priority DESC, id ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var rules []*rule.Rule

	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}

		rules = append(rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rule rows: %w", err)
	}

	return rules, nil
}

func (s *Store) CreateRule(ctx context.Context, r *rule.Rule) error {
	return createRule(ctx, s.db, r)
}

func createRule(ctx context.Context, q querier, r *rule.Rule) error {
	query := `
		INSERT INTO categorization_rules (
			rule_type, counterparty_inn, counterparty_name, business_operation, keyword,
			category_id, priority, confidence, is_active, origin, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`

	f := r.Match.Fields()

	err := q.QueryRowContext(ctx, query,
		r.Match.Type(),
		f.CounterpartyINN,
		f.CounterpartyName,
		f.BusinessOperation,
		f.Keyword,
		r.CategoryID,
		r.Priority,
		r.Confidence,
		r.IsActive,
		r.Origin,
		r.Notes,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}

	return nil
}

func (s *Store) UpdateRule(ctx context.Context, r *rule.Rule) error {
	query := `
		UPDATE categorization_rules
		SET rule_type = $1, counterparty_inn = $2, counterparty_name = $3,
			business_operation = $4, keyword = $5, category_id = $6, priority = $7,
			confidence = $8, is_active = $9, origin = $10, notes = $11, updated_at = NOW()
		WHERE id = $12
		RETURNING updated_at
	`

	f := r.Match.Fields()

	err := s.db.QueryRowContext(ctx, query,
		r.Match.Type(),
		f.CounterpartyINN,
		f.CounterpartyName,
		f.BusinessOperation,
		f.Keyword,
		r.CategoryID,
		r.Priority,
		r.Confidence,
		r.IsActive,
		r.Origin,
		r.Notes,
		r.ID,
	).Scan(&r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rule.ErrNotFound
		}

		return fmt.Errorf("updating rule: %w", err)
	}

	return nil
}

func (s *Store) SetRuleActive(ctx context.Context, id int64, active bool) error {
	return setRuleActive(ctx, s.db, id, active)
}

func setRuleActive(ctx context.Context, q querier, id int64, active bool) error {
	res, err := q.ExecContext(ctx,
		`UPDATE categorization_rules SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id)
	if err != nil {
		return fmt.Errorf("setting rule active: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}

	if n == 0 {
		return rule.ErrNotFound
	}

	return nil
}

func (s *Store) RecordRuleHits(ctx context.Context, hits map[int64]int, at time.Time) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx,
		`UPDATE categorization_rules SET hit_count = hit_count + $1, last_hit_at = $2 WHERE id = $3`)
	if err != nil {
		return fmt.Errorf("preparing hit update: %w", err)
	}
	defer stmt.Close()

	for id, n := range hits {
		if _, err := stmt.ExecContext(ctx, n, at, id); err != nil {
			return fmt.Errorf("recording hits for rule %d: %w", id, err)
		}
	}

	return dbTx.Commit()
}

func matchLockKey(m rule.Match) int64 {
	h := fnv.New64a()
	h.Write([]byte("rule"))
	h.Write([]byte{0})
	h.Write([]byte(m.Key()))

	return int64(h.Sum64())
}

type createTx struct {
	tx *sql.Tx
}

func (s *Store) BeginCreate(ctx context.Context, m rule.Match) (rule.CreateTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning rule tx: %w", err)
	}

	if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", matchLockKey(m)); err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("acquiring rule lock: %w", err)
	}

	return &createTx{tx: dbTx}, nil
}

func (c *createTx) Commit() error   { return c.tx.Commit() }
func (c *createTx) Rollback() error { return c.tx.Rollback() }

func (c *createTx) ListRules(ctx context.Context, filter rule.ListFilter) ([]*rule.Rule, error) {
	return listRules(ctx, c.tx, filter)
}

func (c *createTx) CreateRule(ctx context.Context, r *rule.Rule) error {
	return createRule(ctx, c.tx, r)
}

func (c *createTx) SetRuleActive(ctx context.Context, id int64, active bool) error {
	return setRuleActive(ctx, c.tx, id, active)
}
