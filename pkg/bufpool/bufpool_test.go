package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSizeClasses(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"zero", 0, DefaultSmallSize},
		{"small", 100, DefaultSmallSize},
		{"small boundary", DefaultSmallSize, DefaultSmallSize},
		{"just above small", DefaultSmallSize + 1, DefaultMediumSize},
		{"medium", 10 * 1024, DefaultMediumSize},
		{"medium boundary", DefaultMediumSize, DefaultMediumSize},
		{"just above medium", DefaultMediumSize + 1, DefaultLargeSize},
		{"large", 100 * 1024, DefaultLargeSize},
		{"large boundary", DefaultLargeSize, DefaultLargeSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)

			assert.Equal(t, tt.size, len(buf))
			assert.Equal(t, tt.wantCap, cap(buf))
		})
	}
}

func TestGetOversized(t *testing.T) {
	size := 2 * DefaultLargeSize
	buf := Get(size)

	assert.Equal(t, size, len(buf))
	assert.Equal(t, size, cap(buf))

	// Oversized buffers bypass the pool entirely.
	Put(buf)
	again := Get(size)
	assert.Equal(t, size, cap(again))
	Put(again)
}

func TestPutTolerance(t *testing.T) {
	require.NotPanics(t, func() {
		Put(nil)
	})
	require.NotPanics(t, func() {
		Put([]byte{})
	})
	require.NotPanics(t, func() {
		// Foreign slice whose capacity matches no class.
		Put(make([]byte, 777))
	})
}

func TestReuseRestoresLength(t *testing.T) {
	buf := Get(100)
	require.Equal(t, 100, len(buf))
	Put(buf)

	// A recycled buffer comes back with the full class length available.
	buf = Get(DefaultSmallSize)
	assert.Equal(t, DefaultSmallSize, len(buf))
	Put(buf)
}

func TestCustomPool(t *testing.T) {
	t.Run("custom sizes", func(t *testing.T) {
		pool := NewPool(&Config{
			SmallSize:  1024,
			MediumSize: 8192,
			LargeSize:  65536,
		})

		small := pool.Get(500)
		assert.Equal(t, 1024, cap(small))
		pool.Put(small)

		medium := pool.Get(2000)
		assert.Equal(t, 8192, cap(medium))
		pool.Put(medium)

		large := pool.Get(10000)
		assert.Equal(t, 65536, cap(large))
		pool.Put(large)
	})

	t.Run("nil config", func(t *testing.T) {
		pool := NewPool(nil)

		buf := pool.Get(100)
		assert.Equal(t, DefaultSmallSize, cap(buf))
		pool.Put(buf)
	})

	t.Run("zero values fall back to defaults", func(t *testing.T) {
		pool := NewPool(&Config{MediumSize: 16 * 1024})

		buf := pool.Get(100)
		assert.Equal(t, DefaultSmallSize, cap(buf))
		pool.Put(buf)

		buf = pool.Get(10 * 1024)
		assert.Equal(t, 16*1024, cap(buf))
		pool.Put(buf)
	})
}

func TestConcurrentGetPut(t *testing.T) {
	const goroutines = 16
	const iterations = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				size := (id*131 + j*17) % (2 * DefaultLargeSize)
				buf := Get(size)
				if len(buf) > 0 {
					buf[0] = byte(id)
				}
				Put(buf)
			}
		}(i)
	}

	wg.Wait()
}

func BenchmarkGetPut(b *testing.B) {
	b.Run("small", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			Put(Get(1024))
		}
	})
	b.Run("large", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			Put(Get(512 * 1024))
		}
	})
	b.Run("parallel", func(b *testing.B) {
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				Put(Get(64 * 1024))
			}
		})
	})
}
