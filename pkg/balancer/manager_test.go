package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerDropsOutOfFocusEvents(t *testing.T) {
	m := NewServiceManager(fakeDialer)
	m.Declare("user")

	m.Online("transmit/i1", "1.1.1.1:9000")
	assert.Nil(t, m.Pool("transmit"))

	m.Online("user/i1", "1.1.1.1:9001")
	require.NotNil(t, m.Pool("user"))
	assert.Equal(t, 1, m.Pool("user").Size())
}

func TestManagerOnlineOfflineRoundTrip(t *testing.T) {
	m := NewServiceManager(fakeDialer)
	m.Declare("user")

	m.Online("user/i1", "1.1.1.1:9001")
	m.Online("user/i2", "1.1.1.1:9002")
	require.Equal(t, 2, m.Pool("user").Size())

	m.Offline("user/i1", "1.1.1.1:9001")
	assert.Equal(t, 1, m.Pool("user").Size())

	conn := m.Pick("user")
	require.NotNil(t, conn)
	assert.Equal(t, "1.1.1.1:9002", conn.Address)
}

func TestManagerPickUnknownServiceReturnsNil(t *testing.T) {
	m := NewServiceManager(fakeDialer)
	assert.Nil(t, m.Pick("does-not-exist"))
}

func TestManagerUndeclareKeepsExistingPool(t *testing.T) {
	m := NewServiceManager(fakeDialer)
	m.Declare("user")
	m.Online("user/i1", "1.1.1.1:9001")

	m.Undeclare("user")
	// Pool is left in place for in-flight picks; new online events for it
	// are dropped since it is no longer in focus.
	require.NotNil(t, m.Pool("user"))
	m.Online("user/i2", "1.1.1.1:9002")
	assert.Equal(t, 1, m.Pool("user").Size())
}
