package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put(ctx, "k", []byte(`{"a":1}`), 0))
		rec, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":1}`), rec.Value)
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put(ctx, "k", []byte(`1`), time.Millisecond))
		time.Sleep(5 * time.Millisecond)
		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put(ctx, "k", []byte(`1`), 0))
		require.NoError(t, s.Delete(ctx, "k"))
		require.NoError(t, s.Delete(ctx, "k"))
		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()

	t.Run("create with version 0", func(t *testing.T) {
		s := NewMemoryStore()
		rec, err := s.CompareAndSwap(ctx, "k", 0, []byte(`1`))
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("create fails if key exists", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.CompareAndSwap(ctx, "k", 0, []byte(`1`))
		require.NoError(t, err)
		_, err = s.CompareAndSwap(ctx, "k", 0, []byte(`2`))
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("swap bumps version", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.CompareAndSwap(ctx, "k", 0, []byte(`1`))
		require.NoError(t, err)
		rec, err := s.CompareAndSwap(ctx, "k", 1, []byte(`2`))
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Version)
	})

	t.Run("stale version rejected", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.CompareAndSwap(ctx, "k", 0, []byte(`1`))
		require.NoError(t, err)
		_, err = s.CompareAndSwap(ctx, "k", 1, []byte(`2`))
		require.NoError(t, err)
		_, err = s.CompareAndSwap(ctx, "k", 1, []byte(`3`))
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("swap on missing key", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.CompareAndSwap(ctx, "nope", 3, []byte(`1`))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent create admits one winner", func(t *testing.T) {
		s := NewMemoryStore()
		const n = 16
		var wg sync.WaitGroup
		wins := make(chan struct{}, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.CompareAndSwap(ctx, "contended", 0, []byte(`x`)); err == nil {
					wins <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(wins)
		count := 0
		for range wins {
			count++
		}
		assert.Equal(t, 1, count)
	})
}

func TestMemoryStoreListsAndSets(t *testing.T) {
	ctx := context.Background()

	t.Run("append preserves order", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Append(ctx, "l", []byte(`1`)))
		require.NoError(t, s.Append(ctx, "l", []byte(`2`)))
		require.NoError(t, s.Append(ctx, "l", []byte(`3`)))
		vals, err := s.List(ctx, "l")
		require.NoError(t, err)
		require.Len(t, vals, 3)
		assert.Equal(t, []byte(`1`), vals[0])
		assert.Equal(t, []byte(`3`), vals[2])
	})

	t.Run("missing list is empty", func(t *testing.T) {
		s := NewMemoryStore()
		vals, err := s.List(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, vals)
	})

	t.Run("trim drops the head of the list", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Append(ctx, "l", []byte(`1`)))
		require.NoError(t, s.Append(ctx, "l", []byte(`2`)))
		require.NoError(t, s.Append(ctx, "l", []byte(`3`)))

		require.NoError(t, s.Trim(ctx, "l", 2))
		vals, err := s.List(ctx, "l")
		require.NoError(t, err)
		require.Len(t, vals, 1)
		assert.Equal(t, []byte(`3`), vals[0])
	})

	t.Run("over-trim empties the list", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Append(ctx, "l", []byte(`1`)))
		require.NoError(t, s.Trim(ctx, "l", 10))
		vals, err := s.List(ctx, "l")
		require.NoError(t, err)
		assert.Empty(t, vals)
	})

	t.Run("set membership is idempotent", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.AddMember(ctx, "set", "a"))
		require.NoError(t, s.AddMember(ctx, "set", "a"))
		require.NoError(t, s.AddMember(ctx, "set", "b"))
		members, err := s.Members(ctx, "set")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, members)
	})
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	type payload struct {
		Name string `json:"name"`
	}

	version, err := SwapJSON(ctx, s, "p", 0, payload{Name: "first"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	var got payload
	version, err = GetJSON(ctx, s, "p", &got)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, int64(1), version)

	require.NoError(t, AppendJSON(ctx, s, "pl", payload{Name: "entry"}))
	vals, err := s.List(ctx, "pl")
	require.NoError(t, err)
	require.Len(t, vals, 1)
}
