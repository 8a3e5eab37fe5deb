package models

import (
	"strings"
	"time"
)

// SetRecord is a canonical set. PrintedTotal includes every alias folded into it.
type SetRecord struct {
	Name         string    `json:"name" gorm:"primaryKey"`
	Code         string    `json:"code" gorm:"index"`
	Logo         string    `json:"logo"`
	PrintedTotal int       `json:"printedTotal"`
	PtcgoCode    string    `json:"ptcgoCode"`
	ReleaseDate  string    `json:"releaseDate"`
	Series       string    `json:"series"`
	Aliases      []string  `json:"aliases,omitempty" gorm:"serializer:json"`
	AliasNames   []string  `json:"aliasNames,omitempty" gorm:"serializer:json"`
	UpdatedAt    time.Time `json:"-"`
}

func (SetRecord) TableName() string {
	return "sets"
}

// HasAlias reports whether code is one of the set's alias codes.
func (s SetRecord) HasAlias(code string) bool {
	for _, a := range s.Aliases {
		if strings.EqualFold(a, code) {
			return true
		}
	}
	return false
}

// AddAliasName records name as a set name folded into s.
func (s *SetRecord) AddAliasName(name string) {
	if name == "" || name == s.Name {
		return
	}
	for _, n := range s.AliasNames {
		if n == name {
			return
		}
	}
	s.AliasNames = append(s.AliasNames, name)
}

// SetTarget is the canonical identity an obsolete set resolves to.
type SetTarget struct {
	PrimarySetName string `json:"primarySetName"`
	PrimarySetCode string `json:"primarySetCode"`
}

// SetMapping maps obsolete set names, and alias codes, to their canonical set.
// It is built once per run and read-only afterwards.
type SetMapping struct {
	byName map[string]SetTarget
	byCode map[string]SetTarget
}

func NewSetMapping() *SetMapping {
	return &SetMapping{
		byName: make(map[string]SetTarget),
		byCode: make(map[string]SetTarget),
	}
}

// Add records that the set called name (with machine code code) folds into target.
func (m *SetMapping) Add(name, code string, target SetTarget) {
	if name != "" {
		m.byName[name] = target
	}
	if code != "" {
		m.byCode[strings.ToLower(code)] = target
	}
}

// LookupName returns the canonical target for an obsolete set name.
func (m *SetMapping) LookupName(name string) (SetTarget, bool) {
	if m == nil {
		return SetTarget{}, false
	}
	t, ok := m.byName[name]
	return t, ok
}

// LookupCode returns the canonical target for an alias set code.
func (m *SetMapping) LookupCode(code string) (SetTarget, bool) {
	if m == nil {
		return SetTarget{}, false
	}
	t, ok := m.byCode[strings.ToLower(code)]
	return t, ok
}

func (m *SetMapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byName)
}

// Names returns the mapped obsolete set names with their targets.
func (m *SetMapping) Names() map[string]SetTarget {
	out := make(map[string]SetTarget, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.byName {
		out[k] = v
	}
	return out
}

// MappingFromSets rebuilds the mapping recorded on a reconciled set list from
// each set's alias codes and alias names.
func MappingFromSets(sets []SetRecord) *SetMapping {
	m := NewSetMapping()
	for _, s := range sets {
		target := SetTarget{PrimarySetName: s.Name, PrimarySetCode: s.Code}
		for _, alias := range s.Aliases {
			m.Add("", alias, target)
		}
		for _, name := range s.AliasNames {
			m.Add(name, "", target)
		}
	}
	return m
}
