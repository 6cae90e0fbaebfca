package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsumer(t *testing.T) (*Consumer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewConsumer(Config{Addr: mr.Addr(), Key: "siem:events", BlockTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestNewConsumerRequiresKey(t *testing.T) {
	_, err := NewConsumer(Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestPopReturnsPushedPayload(t *testing.T) {
	c, mr := newTestConsumer(t)
	_, err := mr.Push("siem:events", `{"user":"alice"}`)
	require.NoError(t, err)

	payload, err := c.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"user":"alice"}`, string(payload))
}

func TestPopBatchDrainsInOrder(t *testing.T) {
	c, mr := newTestConsumer(t)
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		_, err := mr.Push("siem:events", v)
		require.NoError(t, err)
	}

	batch, err := c.PopBatch(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "a", string(batch[0]))
	assert.Equal(t, "c", string(batch[2]))

	batch, err = c.PopBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "d", string(batch[0]))
	assert.Equal(t, "e", string(batch[1]))
}

func TestPopBatchSingle(t *testing.T) {
	c, mr := newTestConsumer(t)
	_, err := mr.Push("siem:events", "only", "next")
	require.NoError(t, err)

	batch, err := c.PopBatch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "only", string(batch[0]))
}
