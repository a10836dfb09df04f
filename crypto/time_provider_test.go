package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fixedTimeProvider struct {
	now time.Time
}

func (f fixedTimeProvider) Now() time.Time { return f.now }

func (f fixedTimeProvider) Since(t time.Time) time.Duration { return f.now.Sub(t) }

func TestDefaultTimeProvider(t *testing.T) {
	tp := DefaultTimeProvider{}
	before := time.Now()
	now := tp.Now()
	after := time.Now()

	assert.True(t, !now.Before(before) && !now.After(after))
}

func TestSetDefaultTimeProvider(t *testing.T) {
	defer SetDefaultTimeProvider(nil)

	fixed := fixedTimeProvider{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	SetDefaultTimeProvider(fixed)

	got := GetDefaultTimeProvider()
	assert.Equal(t, fixed.now, got.Now())
}

func TestSetDefaultTimeProviderNilResets(t *testing.T) {
	fixed := fixedTimeProvider{now: time.Unix(0, 0)}
	SetDefaultTimeProvider(fixed)
	SetDefaultTimeProvider(nil)

	_, ok := GetDefaultTimeProvider().(DefaultTimeProvider)
	assert.True(t, ok)
}

func TestFixedTimeProviderSince(t *testing.T) {
	fixed := fixedTimeProvider{now: time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)}
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Hour, fixed.Since(past))
}
