package names

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"simple lowercase", "James Smith", "james smith"},
		{"surname first", "Smith, James", "james smith"},
		{"diacritics", "Kylian Mbappé", "kylian mbappe"},
		{"nordic o", "Martin Ødegaard", "martin odegaard"},
		{"eszett", "Großkreutz", "grosskreutz"},
		{"polish l", "Łukasz Fabiański", "lukasz fabianski"},
		{"apostrophe", "Dara O'Shea", "dara o shea"},
		{"hyphen", "Trent Alexander-Arnold", "trent alexander arnold"},
		{"dotted initial", "J. Smith", "j smith"},
		{"extra whitespace", "  Erling   Haaland ", "erling haaland"},
		{"surname first with accent", "Díaz, Luis", "luis diaz"},
		{"ampersand", "Brighton & Hove Albion", "brighton hove albion"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Smith, James",
		"Kylian Mbappé",
		"Dara O'Shea",
		"Martin Ødegaard",
		"  J.  Smith ",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestTokens(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"j smith", []string{"smith"}},
		{"james smith", []string{"james", "smith"}},
		{"", nil},
		{"a b c", nil},
	}
	for _, tc := range cases {
		got := Tokens(tc.in)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Tokens(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPairKey(t *testing.T) {
	a1, b1 := PairKey("zidane", "adams")
	a2, b2 := PairKey("adams", "zidane")
	if a1 != a2 || b1 != b2 {
		t.Errorf("PairKey not order-independent: (%q,%q) vs (%q,%q)", a1, b1, a2, b2)
	}
	if a1 != "adams" || b1 != "zidane" {
		t.Errorf("PairKey not sorted: got (%q,%q)", a1, b1)
	}
}
