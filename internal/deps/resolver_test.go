package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schedora/engine/internal/store/gormstore"
)

func TestDependenciesMet(t *testing.T) {
	assert.True(t, DependenciesMet(nil))
	assert.True(t, DependenciesMet([]*gormstore.Job{{Status: "SUCCESS"}, {Status: "SUCCESS"}}))
	assert.False(t, DependenciesMet([]*gormstore.Job{{Status: "SUCCESS"}, {Status: "RUNNING"}}))
	assert.False(t, DependenciesMet([]*gormstore.Job{{Status: "PENDING"}}))
}

func TestHasFailedDependencies(t *testing.T) {
	assert.False(t, HasFailedDependencies(nil))
	assert.False(t, HasFailedDependencies([]*gormstore.Job{{Status: "SUCCESS"}, {Status: "RUNNING"}}))
	assert.True(t, HasFailedDependencies([]*gormstore.Job{{Status: "SUCCESS"}, {Status: "FAILED"}}))
	assert.True(t, HasFailedDependencies([]*gormstore.Job{{Status: "DEAD"}}))
	assert.True(t, HasFailedDependencies([]*gormstore.Job{{Status: "CANCELED"}}))
}
