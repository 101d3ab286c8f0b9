package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedKeys(t *testing.T) {
	assert.Equal(t, []byte("/meta/block"), CheckpointKey())
	assert.Equal(t, []byte("/chats/users"), UserChatsKey())
	assert.Equal(t, []byte("/chats/groups"), GroupChatsKey())
	assert.Equal(t, []byte("/chats/channels"), ChannelChatsKey())
	assert.Equal(t, []byte("/subs/operators"), OperatorChatsKey())
}

func TestChatFollowsKey(t *testing.T) {
	assert.Equal(t, []byte("/subs/chats/12345"), ChatFollowsKey(12345))

	// Supergroup ids are negative
	assert.Equal(t, []byte("/subs/chats/-1001234"), ChatFollowsKey(-1001234))
}

func TestParseChatFollowsKey(t *testing.T) {
	for _, chatID := range []int64{1, 12345, -1001234} {
		got, err := ParseChatFollowsKey(ChatFollowsKey(chatID))
		require.NoError(t, err)
		assert.Equal(t, chatID, got)
	}
}

func TestParseChatFollowsKey_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{"wrong prefix", []byte("/chats/users")},
		{"missing id", []byte("/subs/chats/")},
		{"non-numeric id", []byte("/subs/chats/abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChatFollowsKey(tt.key)
			assert.Error(t, err)
		})
	}
}

func TestChatFollowsRange(t *testing.T) {
	start, end := ChatFollowsRange()

	inside := [][]byte{
		ChatFollowsKey(-1001234),
		ChatFollowsKey(0),
		ChatFollowsKey(999999),
	}
	for _, key := range inside {
		assert.True(t, bytes.Compare(key, start) >= 0 && bytes.Compare(key, end) < 0,
			"key %s should be inside the follows range", key)
	}

	outside := [][]byte{
		CheckpointKey(),
		OperatorChatsKey(),
		UserChatsKey(),
	}
	for _, key := range outside {
		assert.False(t, bytes.Compare(key, start) >= 0 && bytes.Compare(key, end) < 0,
			"key %s should be outside the follows range", key)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("/subs/chats0"), prefixUpperBound([]byte("/subs/chats/")))
	assert.Equal(t, []byte{0x01, 0x03}, prefixUpperBound([]byte{0x01, 0x02}))
	assert.Equal(t, []byte{0x02}, prefixUpperBound([]byte{0x01, 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
}
