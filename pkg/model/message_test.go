package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDMConversationIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "dm:alice:bob", DMConversationID("alice", "bob"))
	assert.Equal(t, "dm:alice:bob", DMConversationID("bob", "alice"))
}

func TestConversationID(t *testing.T) {
	direct := &Message{Sender: "bob", Receiver: "alice"}
	assert.False(t, direct.IsGroup())
	assert.Equal(t, "dm:alice:bob", direct.ConversationID())

	grp := &Message{Sender: "bob", GroupID: "g1"}
	assert.True(t, grp.IsGroup())
	assert.Equal(t, "group:g1", grp.ConversationID())
}
