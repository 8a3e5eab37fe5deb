package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cards (
	card_code              TEXT PRIMARY KEY,
	name                   TEXT NOT NULL,
	artist                 TEXT NOT NULL DEFAULT '',
	rarity                 TEXT NOT NULL DEFAULT '',
	set_name               TEXT NOT NULL,
	supertype              TEXT NOT NULL,
	types                  TEXT NOT NULL DEFAULT '',
	image                  TEXT NOT NULL DEFAULT '',
	pokemon_number         INTEGER,
	card_market_url        TEXT NOT NULL DEFAULT '',
	card_market_updated_at TEXT NOT NULL DEFAULT '',
	updated_at             TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cards_set_name ON cards (set_name);

CREATE TABLE IF NOT EXISTS card_prices (
	card_code      TEXT PRIMARY KEY,
	simple         DOUBLE PRECISION,
	low            DOUBLE PRECISION,
	trend          DOUBLE PRECISION,
	avg1           DOUBLE PRECISION,
	avg7           DOUBLE PRECISION,
	avg30          DOUBLE PRECISION,
	reverse_simple DOUBLE PRECISION,
	reverse_low    DOUBLE PRECISION,
	reverse_trend  DOUBLE PRECISION,
	reverse_avg1   DOUBLE PRECISION,
	reverse_avg7   DOUBLE PRECISION,
	reverse_avg30  DOUBLE PRECISION,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sets (
	name          TEXT PRIMARY KEY,
	code          TEXT NOT NULL,
	logo          TEXT NOT NULL DEFAULT '',
	printed_total INTEGER NOT NULL DEFAULT 0,
	ptcgo_code    TEXT NOT NULL DEFAULT '',
	release_date  TEXT NOT NULL DEFAULT '',
	series        TEXT NOT NULL DEFAULT '',
	aliases       TEXT[] NOT NULL DEFAULT '{}',
	alias_names   TEXT[] NOT NULL DEFAULT '{}',
	updated_at    TIMESTAMPTZ NOT NULL
);

ALTER TABLE sets ADD COLUMN IF NOT EXISTS alias_names TEXT[] NOT NULL DEFAULT '{}';
`

const upsertCardSQL = `
INSERT INTO cards (card_code, name, artist, rarity, set_name, supertype, types, image,
	pokemon_number, card_market_url, card_market_updated_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (card_code) DO UPDATE SET
	name = EXCLUDED.name, artist = EXCLUDED.artist, rarity = EXCLUDED.rarity,
	set_name = EXCLUDED.set_name, supertype = EXCLUDED.supertype, types = EXCLUDED.types,
	image = EXCLUDED.image, pokemon_number = EXCLUDED.pokemon_number,
	card_market_url = EXCLUDED.card_market_url,
	card_market_updated_at = EXCLUDED.card_market_updated_at,
	updated_at = EXCLUDED.updated_at`

const upsertPriceSQL = `
INSERT INTO card_prices (card_code, simple, low, trend, avg1, avg7, avg30,
	reverse_simple, reverse_low, reverse_trend, reverse_avg1, reverse_avg7, reverse_avg30, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (card_code) DO UPDATE SET
	simple = EXCLUDED.simple, low = EXCLUDED.low, trend = EXCLUDED.trend,
	avg1 = EXCLUDED.avg1, avg7 = EXCLUDED.avg7, avg30 = EXCLUDED.avg30,
	reverse_simple = EXCLUDED.reverse_simple, reverse_low = EXCLUDED.reverse_low,
	reverse_trend = EXCLUDED.reverse_trend, reverse_avg1 = EXCLUDED.reverse_avg1,
	reverse_avg7 = EXCLUDED.reverse_avg7, reverse_avg30 = EXCLUDED.reverse_avg30,
	updated_at = EXCLUDED.updated_at`

const upsertSetSQL = `
INSERT INTO sets (name, code, logo, printed_total, ptcgo_code, release_date, series, aliases, alias_names, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (name) DO UPDATE SET
	code = EXCLUDED.code, logo = EXCLUDED.logo, printed_total = EXCLUDED.printed_total,
	ptcgo_code = EXCLUDED.ptcgo_code, release_date = EXCLUDED.release_date,
	series = EXCLUDED.series, aliases = EXCLUDED.aliases, alias_names = EXCLUDED.alias_names,
	updated_at = EXCLUDED.updated_at`

// PostgresStore upserts pipeline output into Postgres with batched statements.
type PostgresStore struct {
	pool      *pgxpool.Pool
	batchSize int
}

// OpenPostgres connects a pool to dsn and creates the schema.
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool, batchSize: defaultBatchSize}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Println("Postgres connected and migrated")
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create postgres schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// sendBatches queues n rows batchSize at a time and executes each batch.
func (s *PostgresStore) sendBatches(ctx context.Context, n int, queue func(b *pgx.Batch, i int)) (int64, error) {
	var affected int64
	for start := 0; start < n; start += s.batchSize {
		end := min(start+s.batchSize, n)
		b := &pgx.Batch{}
		for i := start; i < end; i++ {
			queue(b, i)
		}

		br := s.pool.SendBatch(ctx, b)
		for i := start; i < end; i++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return affected, err
			}
			affected += tag.RowsAffected()
		}
		if err := br.Close(); err != nil {
			return affected, err
		}
	}
	return affected, nil
}

func (s *PostgresStore) WriteCards(ctx context.Context, cards []models.CanonicalCard) error {
	now := time.Now()
	n, err := s.sendBatches(ctx, len(cards), func(b *pgx.Batch, i int) {
		c := cards[i]
		b.Queue(upsertCardSQL,
			c.CardCode, c.Name, c.Artist, c.Rarity, c.SetName, string(c.Supertype), c.Types, c.Image,
			c.PokemonNumber, c.CardMarketURL, c.CardMarketUpdatedAt, now,
		)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert cards: %w", err)
	}
	log.Printf("PostgresStore: upserted %d cards", n)
	return nil
}

func (s *PostgresStore) WritePrices(ctx context.Context, prices map[string]models.PriceRecord) error {
	rows := PriceRows(prices)
	now := time.Now()
	n, err := s.sendBatches(ctx, len(rows), func(b *pgx.Batch, i int) {
		p := rows[i]
		b.Queue(upsertPriceSQL,
			p.CardCode, p.Simple, p.Low, p.Trend, p.Avg1, p.Avg7, p.Avg30,
			p.ReverseSimple, p.ReverseLow, p.ReverseTrend, p.ReverseAvg1, p.ReverseAvg7, p.ReverseAvg30, now,
		)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert prices: %w", err)
	}
	log.Printf("PostgresStore: upserted %d prices", n)
	return nil
}

func (s *PostgresStore) WriteSets(ctx context.Context, sets []models.SetRecord) error {
	now := time.Now()
	n, err := s.sendBatches(ctx, len(sets), func(b *pgx.Batch, i int) {
		set := sets[i]
		b.Queue(upsertSetSQL,
			set.Name, set.Code, set.Logo, set.PrintedTotal, set.PtcgoCode, set.ReleaseDate, set.Series,
			nonNilStrings(set.Aliases), nonNilStrings(set.AliasNames), now,
		)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert sets: %w", err)
	}
	log.Printf("PostgresStore: upserted %d sets", n)
	return nil
}

// DeleteCards removes cards and their prices by code in one transaction.
func (s *PostgresStore) DeleteCards(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM card_prices WHERE card_code = ANY($1)`, codes); err != nil {
			return fmt.Errorf("failed to delete prices: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cards WHERE card_code = ANY($1)`, codes); err != nil {
			return fmt.Errorf("failed to delete cards: %w", err)
		}
		return nil
	})
}

// nonNilStrings keeps NOT NULL array columns from receiving NULL.
func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
