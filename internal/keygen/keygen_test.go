package keygen

import (
	"strings"
	"testing"
)

func TestGenerateShape(t *testing.T) {
	key := Generate()
	if len(key) != Length {
		t.Fatalf("len(Generate()) = %d, want %d", len(key), Length)
	}
	if strings.Trim(key, "0123456789abcdef") != "" {
		t.Errorf("Generate() = %q, want lowercase hex only", key)
	}
}

func TestGenerateDoesNotCollide(t *testing.T) {
	existing := map[string]bool{}
	for i := 0; i < 64; i++ {
		existing[Generate()] = true
	}

	for i := 0; i < 10000; i++ {
		key := Generate()
		if existing[key] {
			t.Fatalf("generated key %q collides with existing set", key)
		}
	}
}
