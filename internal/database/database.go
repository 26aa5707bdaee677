// Package database owns the Postgres connection lifecycle and the schema
// bootstrap.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// schemaLockKey serializes schema bootstrap across server and worker startups.
const schemaLockKey int64 = 2026101401

// Connect opens a pgx connection pool using the provided DSN and checks it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// OpenSQL exposes pool through database/sql for the repository. Closing the
// returned DB does not close the pool.
func OpenSQL(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

// EnsureSchema creates the case, owner, spouse, property and run ledger
// tables if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const documentSlots = `
	pdf_sefaz VARCHAR(255),
	pdf_trabalho VARCHAR(255),
	pdf_nada_consta_civel VARCHAR(255),
	pdf_nada_consta_criminal VARCHAR(255),
	pdf_nada_consta_falencia VARCHAR(255),
	pdf_nada_consta_especial VARCHAR(255),
	pdf_receita VARCHAR(255),
	pdf_tjdf_criminal VARCHAR(255),
	pdf_tjdf_eleitoral VARCHAR(255),
	pdf_tjdf_civel VARCHAR(255),
	ad VARCHAR(255)`

const schema = `
CREATE TABLE IF NOT EXISTS analise (
	id_analise SERIAL PRIMARY KEY,
	status VARCHAR(45) DEFAULT 'pendente',
	link_pdf VARCHAR(255),
	resumo VARCHAR(255),
	data TIMESTAMPTZ NOT NULL DEFAULT now(),
	usuario_id VARCHAR(45)
);

CREATE TABLE IF NOT EXISTS proprietario (
	id_proprietario SERIAL PRIMARY KEY,
	analise_id INTEGER NOT NULL REFERENCES analise(id_analise) ON DELETE CASCADE,
	nome_razao VARCHAR(255),
	nome_mae VARCHAR(255),
	cpf_cnpj VARCHAR(45),
	data_nascimento TIMESTAMPTZ,
	estado_civil VARCHAR(45),
	e_empresa INTEGER,
	nome_fantasia VARCHAR(255),
	nome_representante VARCHAR(255),
	nome_mae_representante VARCHAR(255),
	cpf_representante VARCHAR(45),
	data_nascimento_representante TIMESTAMPTZ,` + documentSlots + `
);
CREATE INDEX IF NOT EXISTS idx_proprietario_analise ON proprietario(analise_id);

CREATE TABLE IF NOT EXISTS esposa_socio (
	id_esposa_socio SERIAL PRIMARY KEY,
	proprietario_id INTEGER NOT NULL UNIQUE REFERENCES proprietario(id_proprietario) ON DELETE CASCADE,
	nome VARCHAR(255),
	cpf VARCHAR(45),
	data_nascimento TIMESTAMPTZ,
	nome_mae VARCHAR(255),` + documentSlots + `
);

CREATE TABLE IF NOT EXISTS imovel (
	id_imovel SERIAL PRIMARY KEY,
	analise_id INTEGER NOT NULL UNIQUE REFERENCES analise(id_analise) ON DELETE CASCADE,
	cep VARCHAR(45),
	endereco VARCHAR(255),
	inscricao_iptu VARCHAR(45),
	cartorio VARCHAR(45),
	matricula VARCHAR(45),
	pdf_sefaz VARCHAR(45)
);

CREATE TABLE IF NOT EXISTS certificate_runs (
	id TEXT PRIMARY KEY,
	case_id INTEGER NOT NULL,
	subject_type TEXT NOT NULL,
	state TEXT NOT NULL,
	outcomes JSONB NOT NULL DEFAULT '[]'::jsonb,
	errors JSONB NOT NULL DEFAULT '[]'::jsonb,
	dossier_name TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_certificate_runs_case ON certificate_runs(case_id, created_at DESC);`
