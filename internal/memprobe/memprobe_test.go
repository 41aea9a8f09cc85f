package memprobe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvailablePct(t *testing.T) {
	p := &Fake{AvailableBytes: 10, TotalBytes: 100}
	pct, err := AvailablePct(p)
	assert.NoError(t, err)
	assert.Equal(t, 10.0, pct)
}

func TestAvailablePct_ZeroTotal(t *testing.T) {
	p := &Fake{AvailableBytes: 10, TotalBytes: 0}
	pct, err := AvailablePct(p)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, pct)
}

func TestAvailablePct_Error(t *testing.T) {
	p := &Fake{Err: errors.New("boom")}
	_, err := AvailablePct(p)
	assert.Error(t, err)
}

func TestNew_ReturnsProvider(t *testing.T) {
	assert.NotNil(t, New())
}
