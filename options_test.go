package lite3

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	o := NewOptions()
	require.NoError(t, o.Validate())

	assert.Equal(t, 5*time.Second, o.timeout)
	assert.Equal(t, 160, o.replicas)
	assert.Equal(t, PlacementRing, o.placement)
	assert.Equal(t, 4, o.concurrency)
	assert.Equal(t, 30*time.Second, o.refreshTimeout)
	assert.Zero(t, o.refreshAfterFailures)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts *Options
		want error
	}{
		{"negative timeout", NewOptions().WithTimeout(-time.Second), ErrInvalidTimeout},
		{"unknown placement", NewOptions().WithPlacement("maglev"), ErrInvalidPlacement},
		{"negative retries", NewOptions().WithRefreshMaxRetries(-1), ErrInvalidRefreshMaxRetries},
		{"zero interval", NewOptions().WithRefreshInitialInterval(0), ErrInvalidRefreshBackoff},
		{"zero backoff", NewOptions().WithRefreshBackoff(0), ErrInvalidRefreshBackoff},
		{"zero refresh timeout", NewOptions().WithRefreshTimeout(0), ErrInvalidRefreshTimeout},
		{"negative failures", NewOptions().WithRefreshAfterFailures(-1), ErrInvalidRefreshAfterFailures},
		{"zero concurrency", NewOptions().WithConcurrency(0), ErrInvalidConcurrency},
		{"zero probe timeout", NewOptions().WithProbeTimeout(0), ErrInvalidProbeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.opts.Validate(), tt.want)
		})
	}
}

func TestOptions_ZeroTimeoutIsValid(t *testing.T) {
	assert.NoError(t, NewOptions().WithTimeout(0).Validate())
}

func TestNew_ValidatesArguments(t *testing.T) {
	_, err := New("", 8080, nil)
	assert.ErrorIs(t, err, ErrInvalidSeedHost)

	_, err = New("127.0.0.1", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidSeedPort)

	_, err = New("127.0.0.1", 65536, nil)
	assert.ErrorIs(t, err, ErrInvalidSeedPort)

	_, err = New("127.0.0.1", 8080, NewOptions().WithConcurrency(-1))
	assert.ErrorIs(t, err, ErrInvalidConcurrency)

	r, err := New("127.0.0.1", 8080, nil)
	require.NoError(t, err)
	assert.Empty(t, r.Nodes())
}
