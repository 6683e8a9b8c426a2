// ABOUTME: Tests for the retired-identifier TTL set.
// ABOUTME: Covers retirement, expiry, capacity eviction, and empty keys.

package stale

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetire_Basic(t *testing.T) {
	s := New(time.Minute, 100)
	defer s.Close()

	assert.False(t, s.Retired("sess-1"))
	s.Retire("sess-1")
	assert.True(t, s.Retired("sess-1"))
	assert.False(t, s.Retired("sess-2"))
}

func TestRetire_EmptyKeyIgnored(t *testing.T) {
	s := New(time.Minute, 100)
	defer s.Close()

	s.Retire("")
	assert.False(t, s.Retired(""))
}

func TestRetired_ExpiresAfterTTL(t *testing.T) {
	s := New(20*time.Millisecond, 100)
	defer s.Close()

	s.Retire("sess-1")
	assert.True(t, s.Retired("sess-1"))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, s.Retired("sess-1"))
}

func TestRetire_EvictsOldestAtCapacity(t *testing.T) {
	s := New(time.Minute, 3)
	defer s.Close()

	for i := 0; i < 4; i++ {
		s.Retire(fmt.Sprintf("sess-%d", i))
	}

	assert.False(t, s.Retired("sess-0"), "oldest evicted")
	for i := 1; i < 4; i++ {
		assert.True(t, s.Retired(fmt.Sprintf("sess-%d", i)))
	}
}

func TestClose_Idempotent(t *testing.T) {
	s := New(time.Minute, 10)
	s.Close()
	s.Close()
}
