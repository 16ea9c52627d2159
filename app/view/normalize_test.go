package view

import (
	"testing"
)

func TestFoldSearchText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"テスト", "てすと"},       // katakana folds to hiragana
		{"てすと", "てすと"},       // hiragana unchanged
		{"ﾃｽﾄ", "てすと"},        // half-width katakana widened then folded
		{"ABC Go", "abc go"}, // ASCII lowercased
		{"ＡＢＣ", "abc"},        // full-width letters narrowed and lowercased
	}

	for _, tt := range tests {
		if got := FoldSearchText(tt.input); got != tt.want {
			t.Errorf("FoldSearchText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
