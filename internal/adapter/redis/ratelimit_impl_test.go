package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInt64(t *testing.T) {
	for in, want := range map[any]int64{
		int64(7):        7,
		"1714557600000": 1714557600000,
		"1.5e3":         1500,
	} {
		got, err := toInt64(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := toInt64(3.5)
	assert.Error(t, err)
	_, err = toInt64("abc")
	assert.Error(t, err)
}

func TestWaitWithoutLimitReturnsImmediately(t *testing.T) {
	limiter := NewRateLimiter(nil, 0, time.Second)
	assert.NoError(t, limiter.Wait(context.Background(), "amazon"))
}
