package duration

import (
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		token string
		want  int64
	}{
		{"30d", 2592000},
		{"1year", 31536000},
		{"1s", 1},
		{"5m", 300},
		{"2h", 7200},
		{"1w", 604800},
		{"  7D ", 604800},
		{"1YEAR", 31536000},
		{"0s", 0},
		{"007d", 7 * 86400},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := Parse(tt.token)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.token, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.token, got, tt.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, token := range []string{"", "abc", "-5d", "+5d", "1d12h", "5", "d", "5y", "5years", "1.5d", "5 d", "５d"} {
		t.Run(token, func(t *testing.T) {
			_, err := Parse(token)
			if !errors.Is(err, ErrNotRecognized) {
				t.Errorf("Parse(%q) error = %v, want ErrNotRecognized", token, err)
			}
		})
	}
}

func TestParseOverflow(t *testing.T) {
	for _, token := range []string{"99999999999999999999s", "999999999999999year"} {
		if _, err := Parse(token); !errors.Is(err, ErrOverflow) {
			t.Errorf("Parse(%q) error = %v, want ErrOverflow", token, err)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m"},
		{90, "1m"},
		{3600, "1h"},
		{86399, "23h"},
		{2592000, "4w"},
		{604800, "1w"},
		{31536000, "1year"},
		{63072000 + 5, "2year"},
	}

	for _, tt := range tests {
		if got := Format(tt.seconds); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatNeverExceedsInput(t *testing.T) {
	for _, token := range []string{"1s", "61s", "90m", "25h", "13d", "30d", "8w", "400d", "1year", "3year"} {
		secs, err := Parse(token)
		if err != nil {
			t.Fatalf("Parse(%q): %v", token, err)
		}
		formatted := Format(secs)
		back, err := Parse(formatted)
		if err != nil {
			t.Fatalf("Parse(Format(%d)) = Parse(%q): %v", secs, formatted, err)
		}
		if back > secs {
			t.Errorf("Parse(Format(%d)) = %d, exceeds input", secs, back)
		}
	}
}

func TestToDuration(t *testing.T) {
	d, err := ToDuration(Day)
	if err != nil {
		t.Fatalf("ToDuration: %v", err)
	}
	if d != 24*time.Hour {
		t.Errorf("ToDuration(Day) = %v, want 24h", d)
	}
	if _, err := ToDuration(1000 * Year); !errors.Is(err, ErrOverflow) {
		t.Errorf("ToDuration(1000 years) error = %v, want ErrOverflow", err)
	}
}
