package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipscope/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_records (
	feed            TEXT    NOT NULL,
	rank            INTEGER NOT NULL,
	coin_address    TEXT    NOT NULL,
	creator_address TEXT    NOT NULL,
	name            TEXT    NOT NULL,
	symbol          TEXT    NOT NULL,
	metadata_uri    TEXT    NOT NULL,
	image_uri       TEXT    NOT NULL,
	animation_uri   TEXT    NOT NULL,
	extra           JSONB,
	block_number    BIGINT  NOT NULL,
	tx_hash         TEXT    NOT NULL,
	log_index       BIGINT  NOT NULL,
	published_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (feed, rank)
)`

// Store publishes catalog snapshots to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the catalog table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// PutCatalog replaces the feed's rows with records, ranked in order, in one
// transaction.
func (s *Store) PutCatalog(ctx context.Context, feed string, records []model.DisplayRecord) error {
	if feed == "" {
		return fmt.Errorf("feed name required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_records WHERE feed = $1`, feed); err != nil {
		return fmt.Errorf("clear feed %s: %w", feed, err)
	}

	if len(records) > 0 {
		batch := &pgx.Batch{}
		for i, record := range records {
			args, err := catalogRowArgs(feed, i, record)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO catalog_records (
					feed, rank, coin_address, creator_address, name, symbol, metadata_uri,
					image_uri, animation_uri, extra, block_number, tx_hash, log_index
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12,$13)
			`, args...)
		}

		br := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert catalog record: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func catalogRowArgs(feed string, rank int, record model.DisplayRecord) ([]interface{}, error) {
	var extra *string
	if len(record.Metadata.Extra) > 0 {
		data, err := json.Marshal(record.Metadata.Extra)
		if err != nil {
			return nil, fmt.Errorf("marshal extra for %s: %w", record.Event.CoinAddress, err)
		}
		s := string(data)
		extra = &s
	}

	return []interface{}{
		feed,
		rank,
		record.Event.CoinAddress,
		record.Event.CreatorAddress,
		record.Event.Name,
		record.Event.Symbol,
		record.Event.MetadataURI,
		record.Metadata.ImageURI,
		record.Metadata.AnimationURI,
		extra,
		int64(record.Position.BlockNumber),
		record.Position.TxHash,
		int64(record.Position.LogIndex),
	}, nil
}
