package services

import (
	_ "embed"
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/titanous/json5"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/metrics"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

//go:embed data/set_aliases.json5
var defaultAliasFile []byte

// AliasRule folds the listed alias sets into Primary.
type AliasRule struct {
	Primary string   `json:"primary"`
	Aliases []string `json:"aliases"`
}

// Merge strategies reported in SetMerge and metrics.
const (
	MergeAlias     = "alias"
	MergeCode      = "code"
	MergeDuplicate = "duplicate"
	MergePattern   = "pattern"
	MergeSubstring = "substring"
	MergeTable     = "table"
	MergeFuzzy     = "fuzzy"
)

// SetMerge records one set folded into another.
type SetMerge struct {
	Alias     string `json:"alias"`
	AliasCode string `json:"aliasCode"`
	Primary   string `json:"primary"`
	Strategy  string `json:"strategy"`
}

// DefaultAliasRules returns the embedded alias table.
func DefaultAliasRules() ([]AliasRule, error) {
	return parseAliasRules(defaultAliasFile)
}

// LoadAliasRules reads an alias table from path, or the embedded one when path is empty.
func LoadAliasRules(path string) ([]AliasRule, error) {
	if path == "" {
		return DefaultAliasRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias file: %w", err)
	}
	return parseAliasRules(data)
}

func parseAliasRules(data []byte) ([]AliasRule, error) {
	var rules []AliasRule
	if err := json5.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse alias rules: %w", err)
	}
	for i, rule := range rules {
		if strings.TrimSpace(rule.Primary) == "" {
			return nil, fmt.Errorf("alias rule %d has no primary set", i)
		}
	}
	return rules, nil
}

// DeriveSetCode returns the second-to-last path segment of an image URL, which
// the card API uses as the set's machine code ("https://images.pokemontcg.io/sma/logo.png" -> "sma").
func DeriveSetCode(imageURL string) string {
	if imageURL == "" {
		return ""
	}
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil && u.Path != "" {
		p = u.Path
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")
	if len(segments) < 2 {
		return ""
	}
	return strings.ToLower(segments[len(segments)-2])
}

// SetReconciler collapses upstream set records that denote the same printed set.
type SetReconciler struct {
	rules          []AliasRule
	fuzzyThreshold float64
}

func NewSetReconciler(rules []AliasRule, fuzzyThreshold float64) *SetReconciler {
	return &SetReconciler{
		rules:          rules,
		fuzzyThreshold: fuzzyThreshold,
	}
}

// ReconcileResult is the outcome of a live set fetch reconciliation.
type ReconcileResult struct {
	Sets    []models.SetRecord
	Mapping *models.SetMapping
	Merges  []SetMerge
}

// setBook tracks the working set list while sets are folded together.
type setBook struct {
	sets    []models.SetRecord
	removed []bool
	byName  map[string]int
	mapping *models.SetMapping
	merges  []SetMerge
}

func newSetBook(sets []models.SetRecord) *setBook {
	b := &setBook{
		sets:    sets,
		removed: make([]bool, len(sets)),
		byName:  make(map[string]int, len(sets)),
		mapping: models.NewSetMapping(),
	}
	for i, s := range sets {
		b.byName[s.Name] = i
	}
	return b
}

// fold merges the set at alias into the set at primary.
func (b *setBook) fold(primary, alias int, strategy string) {
	p := &b.sets[primary]
	a := b.sets[alias]

	p.PrintedTotal += a.PrintedTotal
	for _, code := range append([]string{a.Code}, a.Aliases...) {
		if code != "" && code != p.Code && !p.HasAlias(code) {
			p.Aliases = append(p.Aliases, code)
		}
	}
	p.AddAliasName(a.Name)
	for _, name := range a.AliasNames {
		p.AddAliasName(name)
	}
	b.removed[alias] = true

	target := models.SetTarget{PrimarySetName: p.Name, PrimarySetCode: p.Code}
	b.mapping.Add(a.Name, a.Code, target)
	for _, code := range a.Aliases {
		b.mapping.Add("", code, target)
	}
	for _, name := range a.AliasNames {
		b.mapping.Add(name, "", target)
	}

	b.merges = append(b.merges, SetMerge{Alias: a.Name, AliasCode: a.Code, Primary: p.Name, Strategy: strategy})
	metrics.SetsMergedTotal.WithLabelValues(strategy).Inc()
	log.Printf("SetReconciler: folded %q (%s, printed %d) into %q via %s, printed total now %d",
		a.Name, a.Code, a.PrintedTotal, p.Name, strategy, p.PrintedTotal)
}

func (b *setBook) live() []models.SetRecord {
	out := make([]models.SetRecord, 0, len(b.sets))
	for i, s := range b.sets {
		if !b.removed[i] {
			out = append(out, s)
		}
	}
	return out
}

// Reconcile converts fetched sets into canonical set records, applying the
// alias table first and then grouping sets that share a machine code.
func (r *SetReconciler) Reconcile(raw []models.RawAPISet) *ReconcileResult {
	records := make([]models.SetRecord, 0, len(raw))
	seen := make(map[string]int, len(raw))
	for _, rs := range raw {
		rec := setRecordFromRaw(rs)
		if rec.Name == "" {
			log.Printf("SetReconciler: skipping set %q with no name", rs.ID)
			continue
		}
		if i, dup := seen[rec.Name]; dup {
			// Same name twice upstream: keep one record, counting both
			records[i].PrintedTotal += rec.PrintedTotal
			if rec.Code != "" && rec.Code != records[i].Code && !records[i].HasAlias(rec.Code) {
				records[i].Aliases = append(records[i].Aliases, rec.Code)
			}
			metrics.SetsMergedTotal.WithLabelValues(MergeDuplicate).Inc()
			log.Printf("SetReconciler: duplicate set name %q (%s) merged", rec.Name, rec.Code)
			continue
		}
		seen[rec.Name] = len(records)
		records = append(records, rec)
	}

	book := newSetBook(records)
	r.applyAliasRules(book)
	r.groupByCode(book)

	return &ReconcileResult{
		Sets:    book.live(),
		Mapping: book.mapping,
		Merges:  book.merges,
	}
}

func (r *SetReconciler) applyAliasRules(book *setBook) {
	for _, rule := range r.rules {
		primary, ok := book.byName[rule.Primary]
		if !ok || book.removed[primary] {
			continue
		}
		for _, aliasName := range rule.Aliases {
			alias, ok := book.byName[aliasName]
			if !ok || alias == primary || book.removed[alias] {
				continue
			}
			book.fold(primary, alias, MergeAlias)
		}
	}
}

// groupByCode folds sets whose logo URLs carry the same set code. The first
// listed set of a group is primary. The ptcgo code is not a grouping key: the
// API reuses it across separately printed sets.
func (r *SetReconciler) groupByCode(book *setBook) {
	groups := make(map[string][]int)
	var order []string
	for i, s := range book.sets {
		if book.removed[i] || s.Code == "" {
			continue
		}
		if _, ok := groups[s.Code]; !ok {
			order = append(order, s.Code)
		}
		groups[s.Code] = append(groups[s.Code], i)
	}

	for _, code := range order {
		members := groups[code]
		for _, m := range members[1:] {
			book.fold(members[0], m, MergeCode)
		}
	}
}

func setRecordFromRaw(rs models.RawAPISet) models.SetRecord {
	code := DeriveSetCode(rs.Images.Logo)
	if code == "" {
		code = strings.ToLower(rs.ID)
	}
	printed := rs.PrintedTotal
	if printed == 0 {
		printed = rs.Total
	}
	return models.SetRecord{
		Name:         strings.TrimSpace(rs.Name),
		Code:         code,
		Logo:         rs.Images.Logo,
		PrintedTotal: printed,
		PtcgoCode:    rs.PtcgoCode,
		ReleaseDate:  rs.ReleaseDate,
		Series:       rs.Series,
	}
}

// Sub-set naming conventions; the capture is the parent set name.
var subsetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(.+?)\s+trainer gallery$`),
	regexp.MustCompile(`(?i)^(.+?)\s+galarian gallery$`),
	regexp.MustCompile(`(?i)^(.+?)\s+shiny vault$`),
	regexp.MustCompile(`(?i)^(.+?):?\s+classic collection$`),
	regexp.MustCompile(`(?i)^(.+?):?\s+radiant collection$`),
	regexp.MustCompile(`(?i)^(.+?)\s+(?:mini|half deck|theme deck|trainer kit)$`),
}

// irregularSetCodes maps obsolete names that follow no naming convention to
// the logo code of the set that replaced them.
var irregularSetCodes = map[string]string{
	"wizards black star promos":          "basep",
	"nintendo black star promos":         "np",
	"dp black star promos":               "dpp",
	"hgss black star promos":             "hsp",
	"bw black star promos":               "bwp",
	"xy black star promos":               "xyp",
	"sm black star promos":               "smp",
	"swsh black star promos":             "swshp",
	"scarlet & violet black star promos": "svp",
	"pokemon futsal collection":          "fut20",
	"pokémon futsal collection":          "fut20",
	"best of game":                       "bp",
	"pop series 1":                       "pop1",
	"mcdonald's collection 2011":         "mcd11",
	"mcdonald's collection 2012":         "mcd12",
}

// RemapResult is the outcome of reconciling a stored snapshot against a refreshed set list.
type RemapResult struct {
	Sets     []models.SetRecord
	Cards    []models.CanonicalCard
	Mapping  *models.SetMapping
	Merges   []SetMerge
	Unmapped []string
	// Renamed maps each rewritten card code to its new code.
	Renamed map[string]string
}

// RemapSnapshot maps set names that were valid in previous but are missing from
// current onto surviving sets, and rewrites the cards that referenced them.
// Names that cannot be matched are logged and left on the cards unchanged.
func (r *SetReconciler) RemapSnapshot(previous, current []models.SetRecord, cards []models.CanonicalCard) *RemapResult {
	sets := make([]models.SetRecord, len(current))
	copy(sets, current)
	for i := range sets {
		sets[i].Aliases = append([]string(nil), sets[i].Aliases...)
		sets[i].AliasNames = append([]string(nil), sets[i].AliasNames...)
	}

	valid := make(map[string]int, len(sets))
	byCode := make(map[string]int, len(sets))
	for i, s := range sets {
		valid[s.Name] = i
		if s.Code != "" {
			byCode[s.Code] = i
		}
		for _, a := range s.Aliases {
			if _, ok := byCode[a]; !ok {
				byCode[a] = i
			}
		}
	}

	prevByName := make(map[string]models.SetRecord, len(previous))
	var obsolete []string
	addObsolete := func(name string) {
		if name == "" {
			return
		}
		if _, ok := valid[name]; ok {
			return
		}
		for _, o := range obsolete {
			if o == name {
				return
			}
		}
		obsolete = append(obsolete, name)
	}
	for _, s := range previous {
		prevByName[s.Name] = s
		addObsolete(s.Name)
	}
	for _, c := range cards {
		addObsolete(c.SetName)
	}

	result := &RemapResult{Mapping: models.NewSetMapping()}
	for _, name := range obsolete {
		idx, strategy, ok := r.matchObsolete(name, sets, valid, byCode)
		if !ok {
			result.Unmapped = append(result.Unmapped, name)
			continue
		}

		target := &sets[idx]
		old, hadRecord := prevByName[name]
		oldCode := old.Code
		if hadRecord && oldCode != "" && oldCode != target.Code && !target.HasAlias(oldCode) {
			target.PrintedTotal += old.PrintedTotal
			target.Aliases = append(target.Aliases, oldCode)
		}
		target.AddAliasName(name)

		result.Mapping.Add(name, oldCode, models.SetTarget{PrimarySetName: target.Name, PrimarySetCode: target.Code})
		result.Merges = append(result.Merges, SetMerge{Alias: name, AliasCode: oldCode, Primary: target.Name, Strategy: strategy})
		metrics.SetsMergedTotal.WithLabelValues(strategy).Inc()
		log.Printf("SetReconciler: mapped obsolete set %q to %q via %s", name, target.Name, strategy)
	}

	result.Cards, result.Renamed = remapCards(cards, result.Mapping)

	orphaned := make(map[string]int)
	for _, c := range result.Cards {
		if _, ok := valid[c.SetName]; !ok {
			orphaned[c.SetName]++
		}
	}
	for _, name := range result.Unmapped {
		metrics.UnmappedSetsTotal.Inc()
		log.Printf("SetReconciler: no match for obsolete set %q, %d cards keep it", name, orphaned[name])
	}

	result.Sets = sets
	return result
}

func (r *SetReconciler) matchObsolete(name string, sets []models.SetRecord, valid, byCode map[string]int) (int, string, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))

	for _, pattern := range subsetPatterns {
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		parent := strings.TrimSpace(m[1])
		if idx, ok := valid[parent]; ok {
			return idx, MergePattern, true
		}
		for i, s := range sets {
			if strings.EqualFold(s.Name, parent) {
				return i, MergePattern, true
			}
		}
	}

	best := -1
	for i, s := range sets {
		candidate := strings.ToLower(s.Name)
		if candidate == "" {
			continue
		}
		if strings.Contains(lower, candidate) || strings.Contains(candidate, lower) {
			if best < 0 || len(s.Name) < len(sets[best].Name) {
				best = i
			}
		}
	}
	if best >= 0 {
		return best, MergeSubstring, true
	}

	if code, ok := irregularSetCodes[lower]; ok {
		if idx, ok := byCode[code]; ok {
			return idx, MergeTable, true
		}
	}

	if r.fuzzyThreshold > 0 {
		best, bestScore := -1, 0.0
		for i, s := range sets {
			score := matchr.JaroWinkler(lower, strings.ToLower(s.Name), false)
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best >= 0 && bestScore >= r.fuzzyThreshold {
			log.Printf("SetReconciler: fuzzy match %q -> %q (%.3f)", name, sets[best].Name, bestScore)
			return best, MergeFuzzy, true
		}
	}

	return 0, "", false
}

// remapCards rewrites setName and the set segment of cardCode for cards whose
// set was mapped. A rewrite that would collide with an existing code keeps the
// original code.
func remapCards(cards []models.CanonicalCard, mapping *models.SetMapping) ([]models.CanonicalCard, map[string]string) {
	out := make([]models.CanonicalCard, len(cards))
	copy(out, cards)
	renamed := make(map[string]string)

	codes := make(map[string]struct{}, len(out))
	for _, c := range out {
		codes[c.CardCode] = struct{}{}
	}

	for i := range out {
		target, ok := mapping.LookupName(out[i].SetName)
		if !ok {
			continue
		}
		out[i].SetName = target.PrimarySetName
		if target.PrimarySetCode == "" {
			continue
		}
		newCode := ReplaceSetCode(out[i].CardCode, target.PrimarySetCode)
		if newCode == out[i].CardCode {
			continue
		}
		if _, taken := codes[newCode]; taken {
			log.Printf("SetReconciler: keeping card code %s, %s already exists", out[i].CardCode, newCode)
			continue
		}
		delete(codes, out[i].CardCode)
		codes[newCode] = struct{}{}
		renamed[out[i].CardCode] = newCode
		out[i].CardCode = newCode
	}
	return out, renamed
}

// RemapPrices moves price records whose card code was renamed.
func RemapPrices(prices map[string]models.PriceRecord, renamed map[string]string) map[string]models.PriceRecord {
	out := make(map[string]models.PriceRecord, len(prices))
	for code, p := range prices {
		if newCode, ok := renamed[code]; ok {
			code = newCode
		}
		p.CardCode = code
		out[code] = p
	}
	return out
}
