package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportsEngine(t *testing.T) {
	assert.NoError(t, SupportsEngine(""))
	assert.NoError(t, SupportsEngine(">= 1.0.0, < 2.0.0"))
	assert.Error(t, SupportsEngine(">= 2.0.0"))
	assert.Error(t, SupportsEngine("not a constraint"))
}

func TestReadableSave(t *testing.T) {
	assert.NoError(t, ReadableSave(SaveSchema))
	assert.NoError(t, ReadableSave("1.4.2"))
	assert.Error(t, ReadableSave("2.0.0"))
	assert.Error(t, ReadableSave("0.9.0"))
	assert.Error(t, ReadableSave("garbage"))
}
