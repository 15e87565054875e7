package gaudit_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/gaudit"
	"github.com/mickamy/gaudit/memstore"
)

// countingSource counts entity set enumerations, i.e. discovery passes.
type countingSource struct {
	*gaudit.Model
	calls atomic.Int32
	fail  atomic.Int32 // remaining calls to fail
}

func (s *countingSource) EntitySets() ([]gaudit.EntitySet, error) {
	s.calls.Add(1)
	if s.fail.Add(-1) >= 0 {
		return nil, errors.New("metadata unavailable")
	}
	return s.Model.EntitySets()
}

func TestLatch(t *testing.T) {
	t.Parallel()

	var l gaudit.Latch
	assert.True(t, l.Get())
	assert.True(t, l.Get(), "reading does not close the latch")

	l.Set(true)
	assert.False(t, l.Get(), "writing true closes the latch")
	l.Set(true)
	assert.False(t, l.Get())

	var l2 gaudit.Latch
	l2.Set(false)
	assert.False(t, l2.Get())
}

func TestCache_DiscoversOnce(t *testing.T) {
	t.Parallel()

	src := &countingSource{Model: newModel(t)}
	cache := gaudit.NewCache()

	const workers = 32
	var wg sync.WaitGroup
	contexts := make([]*gaudit.Context, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			contexts[i], errs[i] = gaudit.New(src, memstore.New(), gaudit.WithCache(cache))
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, int32(1), src.calls.Load())

	entry, ok := cache.Lookup(src.ContextKey())
	require.True(t, ok)
	assert.False(t, entry.FirstInstantiation.Get())
	assert.Equal(t, 2, entry.Definitions.Len())

	first, _ := contexts[0].Definition("Invoice")
	for _, c := range contexts[1:] {
		def, _ := c.Definition("Invoice")
		assert.Same(t, first, def)
	}

	_, err := gaudit.New(src, memstore.New(), gaudit.WithCache(cache))
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCache_FirstOptionsWin(t *testing.T) {
	t.Parallel()

	cache := gaudit.NewCache()
	model := newModel(t)
	_, err := gaudit.New(model, memstore.New(), gaudit.WithCache(cache))
	require.NoError(t, err)

	opts := gaudit.DefaultOptions()
	opts.AuditTableNameTemplate = "{0}_History"
	c, err := gaudit.New(model, memstore.New(), gaudit.WithCache(cache), gaudit.WithOptions(opts))
	require.NoError(t, err)

	def, _ := c.Definition("Invoice")
	assert.Equal(t, "Invoice_Audit", def.Table())
}

func TestCache_FailedDiscoveryIsRetried(t *testing.T) {
	t.Parallel()

	src := &countingSource{Model: newModel(t)}
	src.fail.Store(1)
	cache := gaudit.NewCache()

	_, err := gaudit.New(src, memstore.New(), gaudit.WithCache(cache))
	assert.ErrorIs(t, err, gaudit.ErrConfiguration)
	_, ok := cache.Lookup(src.ContextKey())
	assert.False(t, ok)

	_, err = gaudit.New(src, memstore.New(), gaudit.WithCache(cache))
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}
