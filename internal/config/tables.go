package config

import (
	"sort"
	"strconv"
	"strings"
)

// Tables holds the immutable strategy tables a session is built with: the
// popup dismissal vocabulary, key codes, text synonyms, and filler words.
// The zero value is empty; use NewTables.
type Tables struct {
	vocabulary []string
	keyCodes   map[string]int
	synonyms   map[string]string
	fillers    []string
}

// NewTables copies the tables out of cfg so later config mutation cannot
// leak into running sessions.
func NewTables(cfg *Config) Tables {
	t := Tables{
		vocabulary: append([]string(nil), cfg.Popup.Vocabulary...),
		keyCodes:   make(map[string]int, len(cfg.Keys)),
		synonyms:   make(map[string]string, len(cfg.Locator.Synonyms)),
		fillers:    append([]string(nil), cfg.Locator.FillerWords...),
	}
	for k, v := range cfg.Keys {
		t.keyCodes[strings.ToLower(k)] = v
	}
	for k, v := range cfg.Locator.Synonyms {
		t.synonyms[k] = v
	}
	// Longest filler first so "按钮" is not half-stripped by a shorter entry.
	sort.SliceStable(t.fillers, func(i, j int) bool {
		return len(t.fillers[i]) > len(t.fillers[j])
	})
	return t
}

// DefaultTables returns tables built from the default configuration.
func DefaultTables() Tables {
	return NewTables(NewDefaultConfig())
}

// Vocabulary returns a copy of the dismissal vocabulary.
func (t Tables) Vocabulary() []string {
	return append([]string(nil), t.vocabulary...)
}

// KeyCode resolves a key name, alias, or numeric code.
func (t Tables) KeyCode(name string) (int, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if code, ok := t.keyCodes[name]; ok {
		return code, true
	}
	if code, err := strconv.Atoi(name); err == nil && code > 0 {
		return code, true
	}
	return 0, false
}

// KeyName returns the canonical ASCII name for a key code, or the number.
func (t Tables) KeyName(code int) string {
	var best string
	for name, c := range t.keyCodes {
		if c != code || !isASCII(name) {
			continue
		}
		if best == "" || name < best {
			best = name
		}
	}
	if best == "" {
		return strconv.Itoa(code)
	}
	return best
}

// Synonym maps a query term to its canonical spelling.
func (t Tables) Synonym(s string) string {
	if v, ok := t.synonyms[s]; ok {
		return v
	}
	return s
}

// StripFillers removes filler words such as "点击" from a query.
func (t Tables) StripFillers(s string) string {
	for _, f := range t.fillers {
		s = strings.ReplaceAll(s, f, "")
	}
	return strings.TrimSpace(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
