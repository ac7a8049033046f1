package ident_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/kiroku/internal/ident"
)

func TestIsValid(t *testing.T) {
	valid := []string{"abc", "ABC-123", "a_b-c", "0", "trace-42_final"}
	for _, id := range valid {
		assert.True(t, ident.IsValid(id), "expected %q to be valid", id)
	}

	invalid := []string{"", "bad id!", "a b", "trace/1", "trace.1", "日本語"}
	for _, id := range invalid {
		assert.False(t, ident.IsValid(id), "expected %q to be invalid", id)
	}
}

func TestNewProducesValidUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := ident.New()
		assert.True(t, ident.IsValid(id))
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}

func TestNowIsMonotonic(t *testing.T) {
	prev := ident.Now()
	for i := 0; i < 1000; i++ {
		now := ident.Now()
		assert.True(t, now.After(prev), "expected %v > %v", now, prev)
		prev = now
	}
}
