package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/metrics"
)

// Cosmetic prefixes printed in front of a species name. Longer variants come
// first so "team rocket's " is stripped before "rocket's ".
var cosmeticPrefixes = []string{
	"team rocket's ",
	"rocket's ",
	"rockets ",
	"shadow ",
	"shiny ",
	"light ",
	"dark ",
}

var variantSuffixPattern = regexp.MustCompile(`-[a-z]+$`)

var apostropheReplacer = strings.NewReplacer(
	"’", "'", // right single quotation mark
	"‘", "'", // left single quotation mark
	"ʼ", "'", // modifier letter apostrophe
	"`", "'",
	" ♀", "♀",
	" ♂", "♂",
)

type resolution struct {
	name string
	ok   bool
}

// NameResolver maps free-text card names to canonical species names.
// It is safe for concurrent use; the species table is never modified.
type NameResolver struct {
	species  *SpeciesTable
	byLength []string
	patterns []*regexp.Regexp
	cache    *lru.Cache[string, resolution]
}

// NewNameResolver builds the longest-first scan list from table. cacheSize
// bounds the memo of previously resolved inputs.
func NewNameResolver(table *SpeciesTable, cacheSize int) (*NameResolver, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, resolution](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver cache: %w", err)
	}

	names := table.Names()
	// Longest first so "mewtwo" wins over "mew"; ties break alphabetically
	sort.SliceStable(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	patterns := make([]*regexp.Regexp, len(names))
	for i, name := range names {
		patterns[i] = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(name) + `(?:[^\p{L}\p{N}]|$)`)
	}

	return &NameResolver{
		species:  table,
		byLength: names,
		patterns: patterns,
		cache:    cache,
	}, nil
}

// Resolve returns the canonical species name found in text, or false when
// no species can be identified.
func (r *NameResolver) Resolve(text string) (string, bool) {
	key := normalizeCardName(text)
	if key == "" {
		return "", false
	}

	if hit, ok := r.cache.Get(key); ok {
		metrics.ResolverCacheHits.Inc()
		return hit.name, hit.ok
	}
	metrics.ResolverCacheMisses.Inc()

	name, ok := r.resolve(key)
	r.cache.Add(key, resolution{name: name, ok: ok})
	return name, ok
}

// ResolveID resolves text and returns the species id.
func (r *NameResolver) ResolveID(text string) (int, bool) {
	name, ok := r.Resolve(text)
	if !ok {
		return 0, false
	}
	return r.species.ID(name)
}

func (r *NameResolver) resolve(s string) (string, bool) {
	// 1. Exact match
	if r.species.Has(s) {
		return s, true
	}

	// 2. Possessive: "rocket's zapdos" -> "zapdos"
	if i := strings.Index(s, "'s "); i >= 0 {
		rest := strings.TrimSpace(s[i+3:])
		if r.species.Has(rest) {
			return rest, true
		}
		if fields := strings.Fields(rest); len(fields) > 0 && r.species.Has(fields[0]) {
			return fields[0], true
		}
	}

	// 3. Cosmetic prefixes, possibly stacked ("dark shiny ...")
	stripped := s
	for {
		trimmed := false
		for _, prefix := range cosmeticPrefixes {
			if strings.HasPrefix(stripped, prefix) {
				stripped = strings.TrimSpace(strings.TrimPrefix(stripped, prefix))
				trimmed = true
				break
			}
		}
		if !trimmed {
			break
		}
		if r.species.Has(stripped) {
			return stripped, true
		}
	}

	// 4. Variant suffix: "deoxys-attack" -> "deoxys"
	if variantSuffixPattern.MatchString(s) {
		base := variantSuffixPattern.ReplaceAllString(s, "")
		if r.species.Has(base) {
			return base, true
		}
	}

	// 5. Longest whole-word occurrence
	for i, name := range r.byLength {
		if !strings.Contains(s, name) {
			continue
		}
		if r.patterns[i].MatchString(s) {
			return name, true
		}
	}

	return "", false
}

// normalizeCardName lowercases text and folds apostrophe and whitespace variants.
func normalizeCardName(text string) string {
	s := apostropheReplacer.Replace(strings.ToLower(text))
	return strings.Join(strings.Fields(s), " ")
}
