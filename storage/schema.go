package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Key prefixes for different data types
const (
	prefixMeta        = "/meta/"
	prefixChats       = "/chats/"
	prefixSubs        = "/subs/"
	prefixChatFollows = "/subs/chats/"
)

// Fixed keys
const (
	keyCheckpoint    = "/meta/block"
	keyUserChats     = "/chats/users"
	keyGroupChats    = "/chats/groups"
	keyChannelChats  = "/chats/channels"
	keyOperatorChats = "/subs/operators"
)

// CheckpointKey returns the key for the durable block checkpoint
func CheckpointKey() []byte {
	return []byte(keyCheckpoint)
}

// UserChatsKey returns the key for the private chat id set
func UserChatsKey() []byte {
	return []byte(keyUserChats)
}

// GroupChatsKey returns the key for the group chat id set
func GroupChatsKey() []byte {
	return []byte(keyGroupChats)
}

// ChannelChatsKey returns the key for the channel chat id set
func ChannelChatsKey() []byte {
	return []byte(keyChannelChats)
}

// OperatorChatsKey returns the key for the node operator subscription map
func OperatorChatsKey() []byte {
	return []byte(keyOperatorChats)
}

// ChatFollowsKey returns the key for a chat's followed node operator list
// Format: /subs/chats/{chatID}
func ChatFollowsKey(chatID int64) []byte {
	return []byte(fmt.Sprintf("%s%d", prefixChatFollows, chatID))
}

// ChatFollowsRange returns iterator bounds covering all chat follow keys
func ChatFollowsRange() (start, end []byte) {
	return []byte(prefixChatFollows), prefixUpperBound([]byte(prefixChatFollows))
}

// ParseChatFollowsKey parses a chat follows key and returns the chat id
func ParseChatFollowsKey(key []byte) (int64, error) {
	keyStr := string(key)
	if !strings.HasPrefix(keyStr, prefixChatFollows) {
		return 0, fmt.Errorf("invalid chat follows key prefix: %s", keyStr)
	}

	idStr := strings.TrimPrefix(keyStr, prefixChatFollows)
	if idStr == "" {
		return 0, fmt.Errorf("invalid chat follows key: missing chat id")
	}

	chatID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat follows key: %w", err)
	}

	return chatID, nil
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, for use as an exclusive iterator upper bound
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff, no upper bound
}
