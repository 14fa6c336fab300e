package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager(t *testing.T) {
	m := newSessionManager()

	sess, err := m.add("alice")
	require.NoError(t, err)
	assert.Equal(t, sess, m.get("alice"))
	assert.Equal(t, 1, m.len())

	// a peer cannot attach twice
	_, err = m.add("alice")
	assert.ErrorIs(t, err, ErrSessionExists)

	m.remove("alice")
	assert.Nil(t, m.get("alice"))
	assert.Equal(t, 0, m.len())
}

func TestSessionPushAfterClose(t *testing.T) {
	m := newSessionManager()
	sess, err := m.add("alice")
	require.NoError(t, err)

	assert.True(t, sess.push(Event{Name: EventMessage, Data: "x"}))

	m.remove("alice")
	assert.False(t, sess.push(Event{Name: EventMessage, Data: "y"}))
}
