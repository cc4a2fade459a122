package patchcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestNew_EmptyAddrReturnsDisabledCache(t *testing.T) {
	c, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNilCache_MethodsAreNoOps(t *testing.T) {
	var c *Cache
	assert.NotPanics(t, func() {
		_, ok := c.Get(context.Background(), "user1")
		assert.False(t, ok)
		c.Set(context.Background(), "user1", &model.ReflectionPatch{TTLRemaining: 2})
		c.Invalidate(context.Background(), "user1")
	})
}

func TestKey_NamespacesByUserID(t *testing.T) {
	assert.Equal(t, "persona:patch:user1", key("user1"))
	assert.NotEqual(t, key("user1"), key("user2"))
}
