package secret

import "testing"

func TestMask(t *testing.T) {
	tests := map[string]string{
		"":                          "",
		"abc":                       "***",
		"abcdef":                    "a****f",
		"sk-0123456789abcdefghijkl": "sk-*********************l",
	}
	for in, want := range tests {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q; want %q", in, got, want)
		}
	}
}
