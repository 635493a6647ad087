package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "twap:lock:collect:BTCUSDT", lockKey("collect:BTCUSDT"))
	assert.Equal(t, "twap:ratelimit:10.0.0.1", rateLimitKey("10.0.0.1"))
}

func TestHasPattern(t *testing.T) {
	tests := []struct {
		channel  string
		expected bool
	}{
		{"twap:reports", false},
		{"twap:*", true},
		{"twap:report?", true},
		{"twap:[ab]", true},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			assert.Equal(t, tt.expected, hasPattern(tt.channel))
		})
	}
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "ZCARD")
}
