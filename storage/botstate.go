package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// BotState is the single owner of all persisted bot state: the durable block
// checkpoint, the chat id sets per chat kind, the node operator subscription
// map and the per-chat follow lists. Every mutation is persisted
// write-through; loading normalizes legacy value forms once per process.
//
// All access goes through one RWMutex. The checkpoint max() is computed
// under the same lock that writes it, so it can never regress.
type BotState struct {
	mu     sync.RWMutex
	kv     KVStore
	logger *zap.Logger

	block     uint64
	users     *ChatIDSet
	groups    *ChatIDSet
	channels  *ChatIDSet
	operators *NodeOperatorChats
	follows   *NodeOperatorSubscriptions
}

// LoadBotState reads and normalizes all persisted bot state.
func LoadBotState(kv KVStore, logger *zap.Logger) (*BotState, error) {
	if kv == nil {
		return nil, fmt.Errorf("kv store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &BotState{
		kv:      kv,
		logger:  logger,
		follows: NewNodeOperatorSubscriptions(),
	}

	s.block = loadCheckpoint(kv, logger)

	var err error
	if s.users, err = loadChatSet(kv, UserChatsKey(), logger); err != nil {
		return nil, err
	}
	if s.groups, err = loadChatSet(kv, GroupChatsKey(), logger); err != nil {
		return nil, err
	}
	if s.channels, err = loadChatSet(kv, ChannelChatsKey(), logger); err != nil {
		return nil, err
	}

	data, err := kv.Get(OperatorChatsKey())
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load operator subscriptions: %w", err)
	}
	s.operators = DecodeNodeOperatorChats(data, logger)

	if err := s.loadFollows(); err != nil {
		return nil, err
	}

	return s, nil
}

// loadCheckpoint coerces the persisted checkpoint to uint64; garbage loads
// as 0 with a warning rather than crashing startup.
func loadCheckpoint(kv KVStore, logger *zap.Logger) uint64 {
	data, err := kv.Get(CheckpointKey())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("failed to load block checkpoint, starting from 0", zap.Error(err))
		}
		return 0
	}

	value, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		logger.Warn("discarding unreadable block checkpoint",
			zap.ByteString("value", data), zap.Error(err))
		return 0
	}
	return value
}

func loadChatSet(kv KVStore, key []byte, logger *zap.Logger) (*ChatIDSet, error) {
	data, err := kv.Get(key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load chat set %s: %w", key, err)
	}
	return DecodeChatIDSet(data, logger), nil
}

func (s *BotState) loadFollows() error {
	start, end := ChatFollowsRange()
	iter, err := s.kv.NewIterator(start, end)
	if err != nil {
		return fmt.Errorf("failed to iterate follow lists: %w", err)
	}
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		chatID, err := ParseChatFollowsKey(iter.Key())
		if err != nil {
			s.logger.Warn("skipping unrecognized follow list key",
				zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		s.follows.LoadChat(chatID, iter.Value(), s.logger)
	}
	return nil
}

// Checkpoint returns the durable last processed block.
func (s *BotState) Checkpoint() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.block
}

// AdvanceCheckpoint moves the checkpoint to max(current, block) and persists
// the result. Returns the value now in effect.
func (s *BotState) AdvanceCheckpoint(block uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block <= s.block {
		return s.block, nil
	}
	if err := s.kv.Set(CheckpointKey(), []byte(strconv.FormatUint(block, 10))); err != nil {
		return s.block, fmt.Errorf("failed to persist block checkpoint: %w", err)
	}
	s.block = block
	return s.block, nil
}

// AddUser registers a private chat. Returns true if it was new.
func (s *BotState) AddUser(chatID int64) (bool, error) {
	return s.mutateChatSet(s.users, UserChatsKey(), chatID, true)
}

// RemoveUser drops a private chat (user blocked the bot).
func (s *BotState) RemoveUser(chatID int64) (bool, error) {
	return s.mutateChatSet(s.users, UserChatsKey(), chatID, false)
}

// AddGroup registers a group chat.
func (s *BotState) AddGroup(chatID int64) (bool, error) {
	return s.mutateChatSet(s.groups, GroupChatsKey(), chatID, true)
}

// RemoveGroup drops a group chat.
func (s *BotState) RemoveGroup(chatID int64) (bool, error) {
	return s.mutateChatSet(s.groups, GroupChatsKey(), chatID, false)
}

// AddChannel registers a channel.
func (s *BotState) AddChannel(chatID int64) (bool, error) {
	return s.mutateChatSet(s.channels, ChannelChatsKey(), chatID, true)
}

// RemoveChannel drops a channel.
func (s *BotState) RemoveChannel(chatID int64) (bool, error) {
	return s.mutateChatSet(s.channels, ChannelChatsKey(), chatID, false)
}

func (s *BotState) mutateChatSet(set *ChatIDSet, key []byte, chatID int64, add bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed bool
	if add {
		changed = set.Add(chatID)
	} else {
		changed = set.Remove(chatID)
	}
	if !changed {
		return false, nil
	}
	if err := s.kv.Set(key, set.Encode()); err != nil {
		return true, fmt.Errorf("failed to persist chat set: %w", err)
	}
	return true, nil
}

// Follow subscribes a chat to a node operator, updating both the operator
// map and the chat's follow list.
func (s *BotState) Follow(chatID int64, opID string) (bool, error) {
	canonical, ok := CanonicalOperatorID(opID)
	if !ok {
		return false, fmt.Errorf("invalid node operator id %q", opID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subscribed := s.operators.Subscribe(canonical, chatID)
	followed := s.follows.Follow(chatID, canonical)
	if !subscribed && !followed {
		return false, nil
	}
	if err := s.persistSubscriptionsLocked(chatID); err != nil {
		return true, err
	}
	return true, nil
}

// Unfollow removes a chat's subscription to a node operator. The operator
// key itself is retained even when its last subscriber leaves.
func (s *BotState) Unfollow(chatID int64, opID string) (bool, error) {
	canonical, ok := CanonicalOperatorID(opID)
	if !ok {
		return false, fmt.Errorf("invalid node operator id %q", opID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unsubscribed := s.operators.Unsubscribe(canonical, chatID)
	unfollowed := s.follows.Unfollow(chatID, canonical)
	if !unsubscribed && !unfollowed {
		return false, nil
	}
	if err := s.persistSubscriptionsLocked(chatID); err != nil {
		return true, err
	}
	return true, nil
}

func (s *BotState) persistSubscriptionsLocked(chatID int64) error {
	batch := s.kv.NewBatch()
	defer batch.Close()

	if err := batch.Set(OperatorChatsKey(), s.operators.Encode()); err != nil {
		return fmt.Errorf("failed to stage operator subscriptions: %w", err)
	}
	if err := batch.Set(ChatFollowsKey(chatID), s.follows.EncodeChat(chatID)); err != nil {
		return fmt.Errorf("failed to stage follow list: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("failed to persist subscriptions: %w", err)
	}
	return nil
}

// Following returns the node operator ids a chat follows, in numeric order.
func (s *BotState) Following(chatID int64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.follows.Following(chatID)
}

// OperatorIDs returns every known node operator id, in numeric order.
func (s *BotState) OperatorIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operators.IDs()
}

// ChatsFor returns the chats subscribed to an operator.
func (s *BotState) ChatsFor(opID string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operators.ChatsFor(opID)
}

// ActualChatIDs returns the union of every chat kind's active set.
func (s *BotState) ActualChatIDs() map[int64]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actualChatIDsLocked()
}

func (s *BotState) actualChatIDsLocked() map[int64]struct{} {
	actual := make(map[int64]struct{}, s.users.Len()+s.groups.Len()+s.channels.Len())
	for _, set := range []*ChatIDSet{s.users, s.groups, s.channels} {
		for _, id := range set.All() {
			actual[id] = struct{}{}
		}
	}
	return actual
}

// ResolveTargetChats returns the active chats subscribed to any of the
// target operators.
func (s *BotState) ResolveTargetChats(targets map[string]struct{}) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operators.ResolveTargets(targets, s.actualChatIDsLocked())
}

// SubscriptionCounts returns aggregate active subscription counts.
func (s *BotState) SubscriptionCounts() SubscriptionCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operators.SubscriptionCounts(s.users, s.groups, s.channels)
}

// CountsByOperator returns active subscription counts per node operator.
func (s *BotState) CountsByOperator() map[string]SubscriptionCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operators.CountsByOperator(s.users, s.groups, s.channels)
}

// MigrateChat atomically replaces a chat id everywhere it occurs: the chat
// kind sets, every operator's subscriber set and the chat's follow list.
// Telegram emits these when a group upgrades to a supergroup.
func (s *BotState) MigrateChat(oldID, newID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.kv.NewBatch()
	defer batch.Close()

	touched := false
	chatSets := []struct {
		set *ChatIDSet
		key []byte
	}{
		{s.users, UserChatsKey()},
		{s.groups, GroupChatsKey()},
		{s.channels, ChannelChatsKey()},
	}
	for _, cs := range chatSets {
		if cs.set.MigrateChat(oldID, newID) {
			if err := batch.Set(cs.key, cs.set.Encode()); err != nil {
				return fmt.Errorf("failed to stage chat set migration: %w", err)
			}
			touched = true
		}
	}

	if operators := s.operators.MigrateChat(oldID, newID); operators > 0 {
		if err := batch.Set(OperatorChatsKey(), s.operators.Encode()); err != nil {
			return fmt.Errorf("failed to stage operator migration: %w", err)
		}
		touched = true
		s.logger.Info("migrated chat in operator subscriptions",
			zap.Int64("oldChatId", oldID), zap.Int64("newChatId", newID),
			zap.Int("operators", operators))
	}

	if s.follows.MigrateChat(oldID, newID) {
		if err := batch.Delete(ChatFollowsKey(oldID)); err != nil {
			return fmt.Errorf("failed to stage follow list removal: %w", err)
		}
		if err := batch.Set(ChatFollowsKey(newID), s.follows.EncodeChat(newID)); err != nil {
			return fmt.Errorf("failed to stage follow list migration: %w", err)
		}
		touched = true
	}

	if !touched {
		return nil
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("failed to persist chat migration: %w", err)
	}
	return nil
}
