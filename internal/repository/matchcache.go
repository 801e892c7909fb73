package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/entity"
)

type MatchCacheRepository interface {
	// Get returns the cached match for (normalizedLabel, templateHash) or
	// common.ErrNotFound on a miss.
	Get(ctx context.Context, normalizedLabel, templateHash string) (*entity.TaxonomyMatchCacheEntry, error)
	// Put inserts a cache entry. Existing entries are left untouched:
	// concurrent first-time matches for the same label may race, and the
	// first write wins; both writes carry the same meaning.
	Put(ctx context.Context, e *entity.TaxonomyMatchCacheEntry) error
}

type matchCacheRepo struct {
	db  *DB
	log *slog.Logger
}

func NewMatchCacheRepository(db *DB, log *slog.Logger) MatchCacheRepository {
	if log == nil {
		log = slog.Default()
	}
	return &matchCacheRepo{db: db, log: log}
}

func (r *matchCacheRepo) Get(ctx context.Context, normalizedLabel, templateHash string) (*entity.TaxonomyMatchCacheEntry, error) {
	q := r.db.Rebind(`SELECT normalized_label, template_hash, matched_header, source, created_at
		FROM taxonomy_match_cache WHERE normalized_label = ? AND template_hash = ?`)
	var e entity.TaxonomyMatchCacheEntry
	err := r.db.QueryRowContext(ctx, q, normalizedLabel, templateHash).
		Scan(&e.NormalizedLabel, &e.TemplateHash, &e.MatchedHeader, &e.Source, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("MATCH_CACHE_MISS",
			fmt.Sprintf("label %q", normalizedLabel), common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("match cache get failed", "label", normalizedLabel, "err", err)
		return nil, fmt.Errorf("match cache get: %w", err)
	}
	return &e, nil
}

func (r *matchCacheRepo) Put(ctx context.Context, e *entity.TaxonomyMatchCacheEntry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := r.db.Rebind(`INSERT INTO taxonomy_match_cache
		(normalized_label, template_hash, matched_header, source, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (normalized_label, template_hash) DO NOTHING`)
	_, err := r.db.ExecContext(ctx, q, e.NormalizedLabel, e.TemplateHash, e.MatchedHeader, e.Source, created)
	if err != nil {
		r.log.Error("match cache put failed", "label", e.NormalizedLabel, "err", err)
		return common.NewAppError("STORAGE_ERROR", "match cache put", errors.Join(common.ErrDatabase, err))
	}
	r.log.Debug("match cache entry stored", "label", e.NormalizedLabel, "header", e.MatchedHeader, "source", e.Source)
	return nil
}
