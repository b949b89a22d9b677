package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesWithWildcard(t *testing.T) {
	assert.True(t, MatchesWithWildcard("/api/trucks/4", "/api/trucks*"))
	assert.True(t, MatchesWithWildcard("/api/trucks", "/api/trucks"))
	assert.False(t, MatchesWithWildcard("/api/trucks/4", "/api/trucks"))
	assert.False(t, MatchesWithWildcard("/api/routes", "/api/trucks*"))
	assert.False(t, MatchesWithWildcard("/api/routes", ""))
	assert.True(t, MatchesWithWildcard("/anything", "*"))
}

func TestSliceHasMatch(t *testing.T) {
	matchers := []string{"/api/costs*", "/api/users"}
	assert.True(t, SliceHasMatch(matchers, "/api/costs/1/approve"))
	assert.True(t, SliceHasMatch(matchers, "/api/users"))
	assert.False(t, SliceHasMatch(matchers, "/api/users/2"))
	assert.False(t, SliceHasMatch(nil, "/api/users"))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"ADMIN", "STAFF"}, "STAFF"))
	assert.False(t, Contains([]string{"ADMIN"}, "admin"))
}
