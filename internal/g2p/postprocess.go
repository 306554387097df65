package g2p

import "strings"

// Rule rewrites every occurrence of From with To.
type Rule struct {
	From string
	To   string
}

// Table is an ordered list of rewrite rules. Adding a rule whose From is
// already present replaces that rule's To in place, so the last registration
// for a pattern wins while the application order stays stable.
type Table struct {
	rules []Rule
	index map[string]int
}

// NewTable returns a table holding rules in order.
func NewTable(rules ...Rule) *Table {
	t := &Table{index: make(map[string]int, len(rules))}
	for _, r := range rules {
		t.Add(r.From, r.To)
	}

	return t
}

// Add registers from -> to.
func (t *Table) Add(from, to string) {
	if from == "" {
		return
	}

	if i, ok := t.index[from]; ok {
		t.rules[i].To = to
		return
	}

	t.index[from] = len(t.rules)
	t.rules = append(t.rules, Rule{From: from, To: to})
}

// Rules returns a copy of the rules in application order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Apply runs every rule over s in order, then strips the '_' phoneme
// separator and '^' tie markers.
func (t *Table) Apply(s string) string {
	if t != nil {
		for _, r := range t.rules {
			s = strings.ReplaceAll(s, r.From, r.To)
		}
	}

	return separators.Replace(s)
}

var separators = strings.NewReplacer("_", "", "^", "")

// espeakRules map espeak IPA onto the model inventory, longest patterns first
// so that diphthongs are rewritten before their parts.
var espeakRules = []Rule{
	{"a^ɪ", "I"},
	{"a^ʊ", "W"},
	{"d^ʒ", "ʤ"},
	{"e^ɪ", "A"},
	{"t^ʃ", "ʧ"},
	{"ɔ^ɪ", "Y"},
	{"ə^l", "ᵊl"},
	{"ʔn", "tᵊn"},
	{"ʲO", "jO"},
	{"ʲQ", "jQ"},
	{"e", "A"},
	{"r", "ɹ"},
	{"x", "k"},
	{"ç", "k"},
	{"ɐ", "ə"},
	{"ɚ", "əɹ"},
	{"ɬ", "l"},
	{"ʔ", "t"},
	{"ʲ", ""},
}

var americanRules = []Rule{
	{"o^ʊ", "O"},
	{"ɜːɹ", "ɜɹ"},
	{"ɜː", "ɜɹ"},
	{"ɪə", "iə"},
	{"ː", ""},
}

var britishRules = []Rule{
	{"ə^ʊ", "Q"},
	{"iə", "ɪə"},
}

// TableFor returns the substitution table for a backend and language.
// Lexicon entries are already in the model inventory and only get separator
// stripping.
func TableFor(kind Kind, language string) *Table {
	if kind != KindEspeak {
		return NewTable()
	}

	t := NewTable(espeakRules...)

	tail := americanRules
	if EspeakVoice(language) == "en-gb" {
		tail = britishRules
	}

	for _, r := range tail {
		t.Add(r.From, r.To)
	}

	return t
}
