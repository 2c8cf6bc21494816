package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stockscan/internal/model"
)

func TestResumeRestoresQueue(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	c1, _ := newTestController(t, Options{Store: kv})
	started := startSession(t, c1, model.ModeIn)
	_, err := c1.SetActiveShelf(ctx, shelfA.ID, "A1")
	require.NoError(t, err)
	scan(t, c1, bolt.Barcode)
	scan(t, c1, nut.Barcode)
	before := c1.Session()

	// A new controller over the same store stands in for a restarted process.
	c2, _ := newTestController(t, Options{Store: kv})
	assert.Nil(t, c2.Session())

	resumed, err := c2.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, started.ID, resumed.ID)
	require.Len(t, resumed.Queue, 2)
	for i := range before.Queue {
		assert.Equal(t, before.Queue[i].ID, resumed.Queue[i].ID)
		assert.Equal(t, before.Queue[i].Status, resumed.Queue[i].Status)
		assert.Equal(t, before.Queue[i].Units, resumed.Queue[i].Units)
	}
	assert.Equal(t, "A1", *resumed.ActiveShelfName)

	// The resumed session commits normally.
	result, err := c2.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)

	_, err = c2.Resume(ctx)
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestResumeIgnoresEmptyQueue(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	c1, _ := newTestController(t, Options{Store: kv})
	startSession(t, c1, model.ModeIn)

	c2, _ := newTestController(t, Options{Store: kv})
	s, err := c2.Resume(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, ok, _ := kv.Get(ctx, DefaultKey)
	assert.False(t, ok)
}

func TestResumeDiscardsUnknownVersion(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, DefaultKey, []byte(`{"version":99,"session":{"id":"x","mode":"in","queue":[{"id":"a"}]}}`)))

	c, _ := newTestController(t, Options{Store: kv})
	s, err := c.Resume(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, ok, _ := kv.Get(ctx, DefaultKey)
	assert.False(t, ok)
}

func TestResumeDiscardsGarbage(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, DefaultKey, []byte("not json")))

	c, _ := newTestController(t, Options{Store: kv})
	s, err := c.Resume(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestBrokenStoreKeepsSessionInMemory(t *testing.T) {
	c, _ := newTestController(t, Options{Store: brokenKV{}})
	ctx := context.Background()

	startSession(t, c, model.ModeIn)
	scan(t, c, bolt.Barcode)
	scan(t, c, nut.Barcode)
	assert.Len(t, c.Session().Queue, 2)

	result, err := c.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	require.NoError(t, c.End(ctx))

	_, err = c.Resume(ctx)
	assert.Error(t, err)
}

func TestSnapshotFormat(t *testing.T) {
	s := &model.ScanSession{ID: "abc", Mode: model.ModeCount, Queue: []model.ScanQueueItem{}}
	data, err := EncodeSnapshot(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":1`)

	got, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)

	_, err = DecodeSnapshot([]byte(`{"version":1,"session":{"id":"abc","mode":"juggle"}}`))
	assert.Error(t, err)
}
