package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("counts hits in window", func(t *testing.T) {
		now := start
		s := NewMemoryStoreWithClock(func() time.Time { return now })

		for i := int64(1); i <= 3; i++ {
			w, err := s.Hit(t.Context(), "user:1", time.Minute)
			require.NoError(t, err)
			require.Equal(t, i, w.Count)
			require.Equal(t, start.Add(time.Minute), w.ResetAt, "window starts with the first hit")
		}

		now = start.Add(20 * time.Second)
		w, err := s.Hit(t.Context(), "user:1", time.Minute)
		require.NoError(t, err)
		require.Equal(t, 40*time.Second, w.TTL)
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := NewMemoryStoreWithClock(func() time.Time { return start })

		_, err := s.Hit(t.Context(), "user:1", time.Minute)
		require.NoError(t, err)
		w, err := s.Hit(t.Context(), "ip:10.0.0.1", time.Minute)
		require.NoError(t, err)

		require.EqualValues(t, 1, w.Count)
	})

	t.Run("resets after window elapsed", func(t *testing.T) {
		now := start
		s := NewMemoryStoreWithClock(func() time.Time { return now })
		_, err := s.Hit(t.Context(), "user:1", time.Minute)
		require.NoError(t, err)
		_, err = s.Hit(t.Context(), "user:1", time.Minute)
		require.NoError(t, err)

		now = start.Add(time.Minute)
		w, err := s.Hit(t.Context(), "user:1", time.Minute)

		require.NoError(t, err)
		require.EqualValues(t, 1, w.Count)
		require.Equal(t, now.Add(time.Minute), w.ResetAt)
	})

	t.Run("prunes elapsed windows", func(t *testing.T) {
		now := start
		s := NewMemoryStoreWithClock(func() time.Time { return now })
		for _, key := range []string{"a", "b", "c"} {
			_, err := s.Hit(t.Context(), key, time.Second)
			require.NoError(t, err)
		}
		require.Equal(t, 3, s.Len())

		now = start.Add(2 * time.Second)
		_, err := s.Hit(t.Context(), "d", time.Second)

		require.NoError(t, err)
		require.Equal(t, 1, s.Len(), "only fresh key should be left")
	})
}
