package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextID(t *testing.T) {
	seen := make(map[int64]struct{})
	for i := 0; i < 1000; i++ {
		id := NextID()
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestNextNo(t *testing.T) {
	no := NextNo("R")
	assert.True(t, strings.HasPrefix(no, "R"))
	assert.Greater(t, len(no), 1)
}
