package taxonomy

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/entity"
	"github.com/kjartanjoensen/report-extractor/internal/repository"
)

const (
	SourceExact = "exact"
	SourceCache = "cache"
	SourceLLM   = "llm"

	defaultShortlistSize = 8
)

// Match is the outcome of resolving one extracted item label.
type Match struct {
	Header  string // canonical taxonomy header; "" when unmatched
	Source  string // "exact" | "cache" | "llm"; "" when unmatched
	Matched bool
}

// HeaderChooser is the LLM fallback used when neither exact nor cached
// matching resolves a label. It returns "" when no candidate fits. A nil
// chooser on the Matcher means no credential is configured; labels that
// reach the fallback stage then come back unmatched, never as an error.
type HeaderChooser interface {
	ChooseHeader(ctx context.Context, label string, candidates []string) (string, error)
}

type Matcher struct {
	tpl       *Template
	cache     repository.MatchCacheRepository
	chooser   HeaderChooser
	shortlist int
	log       *slog.Logger

	// normalized header -> original header, built once from the template
	normHeaders map[string]string
}

func NewMatcher(tpl *Template, cache repository.MatchCacheRepository, chooser HeaderChooser, shortlist int, logger *slog.Logger) *Matcher {
	if shortlist <= 0 {
		shortlist = defaultShortlistSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	norm := make(map[string]string, len(tpl.Headers))
	for _, h := range tpl.Headers {
		norm[NormalizeLabel(h)] = h
	}
	return &Matcher{
		tpl:         tpl,
		cache:       cache,
		chooser:     chooser,
		shortlist:   shortlist,
		log:         logger,
		normHeaders: norm,
	}
}

// NormalizeLabel lowercases and collapses runs of whitespace. This is the
// cache key form, so the same printed label always hits the same entry.
func NormalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Match resolves label to a taxonomy header: exact match against the
// template first, then the persisted cache, then a levenshtein-shortlisted
// LLM choice. Fallback results are cached so a label is resolved by the LLM
// at most once per template version.
func (m *Matcher) Match(ctx context.Context, label string) (Match, error) {
	norm := NormalizeLabel(label)
	if norm == "" {
		return Match{}, nil
	}

	if header, ok := m.normHeaders[norm]; ok {
		return Match{Header: header, Source: SourceExact, Matched: true}, nil
	}

	if entry, err := m.cache.Get(ctx, norm, m.tpl.Hash); err == nil {
		return Match{Header: entry.MatchedHeader, Source: SourceCache, Matched: true}, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return Match{}, err
	}

	if m.chooser == nil {
		m.log.Debug("no header chooser configured, label unmatched", "label", label)
		return Match{}, nil
	}

	candidates := m.shortlistFor(norm)
	choice, err := m.chooser.ChooseHeader(ctx, label, candidates)
	if err != nil {
		return Match{}, err
	}
	header, ok := m.canonicalHeader(choice)
	if !ok {
		if choice != "" {
			m.log.Warn("chooser returned unknown header", "label", label, "choice", choice)
		}
		return Match{}, nil
	}

	if err := m.cache.Put(ctx, &entity.TaxonomyMatchCacheEntry{
		NormalizedLabel: norm,
		TemplateHash:    m.tpl.Hash,
		MatchedHeader:   header,
		Source:          SourceLLM,
	}); err != nil {
		// the match itself is still good; the next run will redo the lookup
		m.log.Warn("match cache write failed", "label", label, "err", err)
	}
	return Match{Header: header, Source: SourceLLM, Matched: true}, nil
}

// shortlistFor picks the template headers closest to norm by edit distance.
func (m *Matcher) shortlistFor(norm string) []string {
	type scored struct {
		header string
		dist   int
	}
	scoredHeaders := make([]scored, 0, len(m.tpl.Headers))
	for _, h := range m.tpl.Headers {
		scoredHeaders = append(scoredHeaders, scored{
			header: h,
			dist:   levenshtein.Distance(norm, NormalizeLabel(h), nil),
		})
	}
	sort.SliceStable(scoredHeaders, func(i, j int) bool {
		return scoredHeaders[i].dist < scoredHeaders[j].dist
	})
	n := m.shortlist
	if n > len(scoredHeaders) {
		n = len(scoredHeaders)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = scoredHeaders[i].header
	}
	return out
}

// canonicalHeader maps a chooser answer back onto a template header,
// tolerating case/whitespace drift in the answer.
func (m *Matcher) canonicalHeader(choice string) (string, bool) {
	if strings.TrimSpace(choice) == "" {
		return "", false
	}
	header, ok := m.normHeaders[NormalizeLabel(choice)]
	return header, ok
}
