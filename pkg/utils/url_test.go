package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{
			"https://www.Amazon.com/Logitech-Wireless-Mouse/dp/B003NR57BY/ref=sr_1_3?keywords=wireless+mouse&qid=1700000000&sr=8-3",
			"https://www.amazon.com/Logitech-Wireless-Mouse/dp/B003NR57BY?keywords=wireless+mouse",
		},
		{
			"https://shop.example.com/p/42?utm_source=mail&utm_medium=x&color=red#reviews",
			"https://shop.example.com/p/42?color=red",
		},
		{
			"https://shop.example.com/p/42?z=1&a=2",
			"https://shop.example.com/p/42?a=2&z=1",
		},
		{"HTTP://Example.com/item?gclid=abc", "http://example.com/item"},
		{"/relative/path", ""},
		{"javascript:alert(1)", ""},
		{"", ""},
		{"  https://example.com/x  ", "https://example.com/x"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalURL(tt.raw), "CanonicalURL(%q)", tt.raw)
	}
}

func TestCanonicalURLIsIdempotent(t *testing.T) {
	raw := "https://www.amazon.com/dp/B0ABC/ref=sr_1_1?th=1&psc=1&keywords=mouse"
	once := CanonicalURL(raw)
	assert.Equal(t, once, CanonicalURL(once))
}

func TestToAbsoluteURL(t *testing.T) {
	base, err := url.Parse("https://www.amazon.com/s?k=mouse")
	require.NoError(t, err)

	got, err := ToAbsoluteURL(base, "/dp/B003NR57BY")
	require.NoError(t, err)
	assert.Equal(t, "https://www.amazon.com/dp/B003NR57BY", got)
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, HashKey("wireless mouse"), HashKey("wireless mouse"))
	assert.NotEqual(t, HashKey("wireless mouse"), HashKey("wired mouse"))
	assert.Len(t, HashKey("x"), 64)
}
