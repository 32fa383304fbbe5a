package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerWithTLSFailsWithoutCert(t *testing.T) {
	_, err := NewServerWithTLS(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load server cert")
}
