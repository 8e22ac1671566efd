package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"scholar-assistant/internal/domain"
)

const catalogSchema = `
	CREATE TABLE IF NOT EXISTS assistant_intent_rules (
		intent      TEXT PRIMARY KEY,
		keywords    TEXT[] NOT NULL,
		response    TEXT NOT NULL,
		suggestions TEXT[] NOT NULL DEFAULT '{}',
		priority    INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS assistant_fallbacks (
		position INTEGER PRIMARY KEY,
		response TEXT NOT NULL
	);
`

// CatalogRepository expone las reglas de intención guardadas en Postgres.
type CatalogRepository interface {
	ListRules(ctx context.Context) ([]domain.IntentRule, error)
	ListFallbacks(ctx context.Context) ([]string, error)
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PgCatalogRepository struct {
	pool pgQuerier
}

func NewPgCatalogRepository(pool *pgxpool.Pool) *PgCatalogRepository {
	return &PgCatalogRepository{pool: pool}
}

// EnsureSchema crea las tablas del catálogo si no existen.
func (r *PgCatalogRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, catalogSchema)
	return err
}

func (r *PgCatalogRepository) ListRules(ctx context.Context) ([]domain.IntentRule, error) {
	const query = `
		SELECT intent, keywords, response, suggestions, priority
		FROM assistant_intent_rules
		ORDER BY priority ASC, intent ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.IntentRule
	for rows.Next() {
		var rule domain.IntentRule
		if err := rows.Scan(
			&rule.Intent,
			&rule.Keywords,
			&rule.Response,
			&rule.Suggestions,
			&rule.Priority,
		); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *PgCatalogRepository) ListFallbacks(ctx context.Context) ([]string, error) {
	const query = `
		SELECT response
		FROM assistant_fallbacks
		ORDER BY position ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fallbacks []string
	for rows.Next() {
		var response string
		if err := rows.Scan(&response); err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, response)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fallbacks, nil
}

// LoadCatalog arma un catálogo parcial (reglas y fallbacks). Saludo y
// acciones rápidas los completa la capa de servicio.
func (r *PgCatalogRepository) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	rules, err := r.ListRules(ctx)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("list intent rules: %w", err)
	}
	fallbacks, err := r.ListFallbacks(ctx)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("list fallbacks: %w", err)
	}
	return domain.Catalog{Rules: rules, Fallbacks: fallbacks}, nil
}
