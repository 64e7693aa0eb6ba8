package output

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccess(t *testing.T) {
	resp := Success(map[string]int{"count": 3})

	assert.Equal(t, "v1", resp.SchemaVersion)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestError(t *testing.T) {
	resp := Error(errors.New("lock busy"))

	assert.Equal(t, "v1", resp.SchemaVersion)
	assert.False(t, resp.Success)
	assert.Equal(t, "lock busy", resp.Error)
	assert.Nil(t, resp.Data)
}
