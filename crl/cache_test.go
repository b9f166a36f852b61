package crl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func crlWithNextUpdate(nu *time.Time) *CRL {
	return &CRL{NextUpdate: nu, Entries: map[string]Entry{}}
}

func Test_Cache_PutGet(t *testing.T) {
	c := NewCache(10, time.Hour)
	nu := time.Now().Add(time.Hour)
	c.Put("issuer-a", crlWithNextUpdate(&nu))

	got, ok := c.Get("issuer-a")
	require.True(t, ok)
	require.NotNil(t, got)

	_, ok = c.Get("issuer-b")
	require.False(t, ok)
}

func Test_Cache_EvictsOldestInsertionFirst(t *testing.T) {
	c := NewCache(2, time.Hour)
	nu := time.Now().Add(time.Hour)

	c.Put("a", crlWithNextUpdate(&nu))
	c.Put("b", crlWithNextUpdate(&nu))
	// Replacing "a" must not reset its insertion position.
	c.Put("a", crlWithNextUpdate(&nu))
	c.Put("c", crlWithNextUpdate(&nu))

	require.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	require.False(t, ok, "a was the oldest insertion and should have been evicted despite being refreshed")
	_, ok = c.Get("b")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func Test_Cache_SoftTTLExpiry(t *testing.T) {
	c := NewCache(10, time.Minute)
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	nu := fakeNow.Add(time.Hour)
	c.Put("issuer-a", crlWithNextUpdate(&nu))

	fakeNow = fakeNow.Add(2 * time.Minute)
	_, ok := c.Get("issuer-a")
	require.False(t, ok, "entry should have expired under the soft TTL")
	require.Equal(t, 0, c.Size())
}

func Test_Cache_ExpiringSoon(t *testing.T) {
	c := NewCache(10, time.Hour)
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	require.True(t, c.ExpiringSoon("missing", 3600), "absent entry is always expiring soon")

	farFuture := fakeNow.Add(2 * time.Hour)
	c.Put("far", crlWithNextUpdate(&farFuture))
	require.False(t, c.ExpiringSoon("far", 3600))

	soon := fakeNow.Add(10 * time.Minute)
	c.Put("soon", crlWithNextUpdate(&soon))
	require.True(t, c.ExpiringSoon("soon", 3600))

	c.Put("nonext", crlWithNextUpdate(nil))
	require.True(t, c.ExpiringSoon("nonext", 3600))
}

func Test_Cache_RemoveExpired(t *testing.T) {
	c := NewCache(10, time.Hour)
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	past := fakeNow.Add(-time.Minute)
	future := fakeNow.Add(time.Hour)
	c.Put("expired", crlWithNextUpdate(&past))
	c.Put("fresh", crlWithNextUpdate(&future))
	c.Put("nonext", crlWithNextUpdate(nil))

	removed := c.RemoveExpired()
	require.Equal(t, 2, removed)
	require.Equal(t, 1, c.Size())
	_, ok := c.Get("fresh")
	require.True(t, ok)
}

func Test_Cache_Clear(t *testing.T) {
	nu := time.Now().Add(time.Hour)
	c := NewCache(10, time.Hour)
	c.Put("a", crlWithNextUpdate(&nu))
	c.Clear()
	require.Equal(t, 0, c.Size())
	require.Empty(t, c.Issuers())
}
