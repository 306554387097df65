package tokenizer

import (
	"reflect"
	"testing"
)

func TestSplitGraphemes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"ascii", "abc", []string{"a", "b", "c"}},
		{"two byte", "hə", []string{"h", "ə"}},
		{"three byte", "ᵊl", []string{"ᵊ", "l"}},
		{"four byte", "a😀b", []string{"a", "😀", "b"}},
		{"combining mark is its own unit", "n̩", []string{"n", "̩"}},
		{"truncated tail", "a\xe2\x82", []string{"a", "\xe2\x82"}},
		{"stray continuation byte", "\x80a", []string{"\x80", "a"}},
		{"empty", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitGraphemes(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitGraphemes(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeWrapsAndSkipsUnknown(t *testing.T) {
	v := NewVocabulary(map[string]int64{"h": 50, "ə": 83, "l": 54, "O": 31, " ": 16, ",": 3})

	ids, skipped := v.Encode("həlˈO, ?")

	want := []int64{0, 50, 83, 54, 31, 3, 16, 0}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Encode ids = %v, want %v", ids, want)
	}

	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}

func TestEncodeEmpty(t *testing.T) {
	ids, _ := NewVocabulary(map[string]int64{"a": 1}).Encode("")
	if !reflect.DeepEqual(ids, []int64{0, 0}) {
		t.Errorf("Encode(\"\") = %v, want [0 0]", ids)
	}
}

func TestTruncate(t *testing.T) {
	ids := []int64{0, 1, 2, 3, 4, 0}

	got, cut := Truncate(ids, 4)
	if !cut || !reflect.DeepEqual(got, []int64{0, 1, 2, 0}) {
		t.Errorf("Truncate(_, 4) = %v, %v", got, cut)
	}

	got, cut = Truncate(ids, 6)
	if cut || !reflect.DeepEqual(got, ids) {
		t.Errorf("Truncate(_, 6) = %v, %v", got, cut)
	}
}
