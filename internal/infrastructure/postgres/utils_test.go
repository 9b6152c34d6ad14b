package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalWallClock(t *testing.T) {
	stored := time.Date(2023, 5, 19, 10, 30, 15, 0, time.UTC)

	got := localWallClock(stored)
	assert.Equal(t, time.Local, got.Location())
	assert.Equal(t, "2023-05-19T10:30:15", got.Format("2006-01-02T15:04:05"))
	assert.True(t, got.Equal(time.Date(2023, 5, 19, 10, 30, 15, 0, time.Local)))
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "x", derefStr(nullIfEmpty("x")))
	assert.Equal(t, "", derefStr(nil))
}
