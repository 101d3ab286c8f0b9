package storage

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// The bot state indexes are small JSON documents persisted under fixed keys.
// Earlier deployments wrote chat ids as strings or floats; loading normalizes
// every entry to int64 and drops garbage with a warning, so a single bad
// record cannot poison the whole index.

// chatIDFromJSON normalizes a decoded JSON value to a chat id.
// Accepts integers, integral floats and decimal strings.
func chatIDFromJSON(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		if id, err := val.Int64(); err == nil {
			return id, true
		}
		f, err := val.Float64()
		if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

// operatorIDFromJSON normalizes a decoded JSON value to a canonical
// node operator id (decimal string without leading zeros).
func operatorIDFromJSON(v interface{}) (string, bool) {
	switch val := v.(type) {
	case json.Number:
		if id, err := strconv.ParseUint(val.String(), 10, 64); err == nil {
			return strconv.FormatUint(id, 10), true
		}
		f, err := val.Float64()
		if err != nil || f != math.Trunc(f) || f < 0 || f > math.MaxUint64 {
			return "", false
		}
		return strconv.FormatUint(uint64(f), 10), true
	case string:
		return CanonicalOperatorID(val)
	default:
		return "", false
	}
}

// CanonicalOperatorID validates a node operator id and returns its canonical
// decimal form.
func CanonicalOperatorID(id string) (string, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatUint(n, 10), true
}

func decodeJSON(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

// ChatIDSet is a set of Telegram chat ids.
type ChatIDSet struct {
	ids map[int64]struct{}
}

// NewChatIDSet creates an empty chat id set
func NewChatIDSet() *ChatIDSet {
	return &ChatIDSet{ids: make(map[int64]struct{})}
}

// DecodeChatIDSet decodes a persisted chat id set, normalizing legacy
// string and float entries and skipping garbage with a warning.
func DecodeChatIDSet(data []byte, logger *zap.Logger) *ChatIDSet {
	set := NewChatIDSet()
	if len(data) == 0 {
		return set
	}

	var raw []interface{}
	if err := decodeJSON(data, &raw); err != nil {
		logger.Warn("discarding unreadable chat id set", zap.Error(err))
		return set
	}

	for _, v := range raw {
		id, ok := chatIDFromJSON(v)
		if !ok {
			logger.Warn("skipping unrecognized chat id entry", zap.Any("entry", v))
			continue
		}
		set.ids[id] = struct{}{}
	}
	return set
}

// Add inserts a chat id. Returns true if the id was not already present.
func (s *ChatIDSet) Add(id int64) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove deletes a chat id. Returns true if the id was present.
func (s *ChatIDSet) Remove(id int64) bool {
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

// Contains checks membership
func (s *ChatIDSet) Contains(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// All returns a sorted copy of the set
func (s *ChatIDSet) All() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of chat ids in the set
func (s *ChatIDSet) Len() int {
	return len(s.ids)
}

// MigrateChat replaces oldID with newID if oldID is present.
// Returns true if the set was touched.
func (s *ChatIDSet) MigrateChat(oldID, newID int64) bool {
	if _, ok := s.ids[oldID]; !ok {
		return false
	}
	delete(s.ids, oldID)
	s.ids[newID] = struct{}{}
	return true
}

// Encode serializes the set as a sorted JSON array
func (s *ChatIDSet) Encode() []byte {
	data, _ := json.Marshal(s.All())
	return data
}

// SubscriptionCounts aggregates node operator subscription statistics.
// Operators with no active subscribed chats are not counted.
type SubscriptionCounts struct {
	Operators int
	Users     int
	Groups    int
	Channels  int
}

// Total returns the number of active subscriptions across all chat kinds
func (c SubscriptionCounts) Total() int {
	return c.Users + c.Groups + c.Channels
}

// NodeOperatorChats maps node operator ids to the chats subscribed to them.
// An operator key with an empty chat set is retained so that the operator
// stays listed after its last subscriber leaves.
type NodeOperatorChats struct {
	chats map[string]map[int64]struct{}
}

// NewNodeOperatorChats creates an empty subscription map
func NewNodeOperatorChats() *NodeOperatorChats {
	return &NodeOperatorChats{chats: make(map[string]map[int64]struct{})}
}

// DecodeNodeOperatorChats decodes a persisted subscription map, normalizing
// entries and skipping garbage keys or values with a warning.
func DecodeNodeOperatorChats(data []byte, logger *zap.Logger) *NodeOperatorChats {
	m := NewNodeOperatorChats()
	if len(data) == 0 {
		return m
	}

	var raw map[string]interface{}
	if err := decodeJSON(data, &raw); err != nil {
		logger.Warn("discarding unreadable node operator subscription map", zap.Error(err))
		return m
	}

	for key, value := range raw {
		opID, ok := CanonicalOperatorID(key)
		if !ok {
			logger.Warn("skipping unrecognized node operator key", zap.String("key", key))
			continue
		}

		list, ok := value.([]interface{})
		if !ok {
			logger.Warn("skipping malformed chat list", zap.String("nodeOperatorId", opID))
			continue
		}

		chats := make(map[int64]struct{}, len(list))
		for _, v := range list {
			id, ok := chatIDFromJSON(v)
			if !ok {
				logger.Warn("skipping unrecognized chat id entry",
					zap.String("nodeOperatorId", opID), zap.Any("entry", v))
				continue
			}
			chats[id] = struct{}{}
		}
		m.chats[opID] = chats
	}
	return m
}

// Subscribe adds a chat to a node operator's subscriber set.
// Returns true if the chat was not already subscribed.
func (m *NodeOperatorChats) Subscribe(opID string, chatID int64) bool {
	set, ok := m.chats[opID]
	if !ok {
		set = make(map[int64]struct{})
		m.chats[opID] = set
	}
	if _, ok := set[chatID]; ok {
		return false
	}
	set[chatID] = struct{}{}
	return true
}

// Unsubscribe removes a chat from a node operator's subscriber set.
// The operator key is retained even when its set becomes empty.
// Returns true if the chat was subscribed.
func (m *NodeOperatorChats) Unsubscribe(opID string, chatID int64) bool {
	set, ok := m.chats[opID]
	if !ok {
		return false
	}
	if _, ok := set[chatID]; !ok {
		return false
	}
	delete(set, chatID)
	return true
}

// ChatsFor returns a sorted copy of the chats subscribed to an operator
func (m *NodeOperatorChats) ChatsFor(opID string) []int64 {
	set, ok := m.chats[opID]
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IDs returns all known node operator ids in numeric order
func (m *NodeOperatorChats) IDs() []string {
	out := make([]string, 0, len(m.chats))
	for id := range m.chats {
		out = append(out, id)
	}
	SortOperatorIDs(out)
	return out
}

// SortOperatorIDs orders canonical operator ids numerically ascending.
func SortOperatorIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseUint(ids[i], 10, 64)
		b, _ := strconv.ParseUint(ids[j], 10, 64)
		return a < b
	})
}

// ResolveTargets returns the sorted union of chats subscribed to any of the
// target operators, restricted to chats present in actual.
func (m *NodeOperatorChats) ResolveTargets(targets map[string]struct{}, actual map[int64]struct{}) []int64 {
	resolved := make(map[int64]struct{})
	for opID := range targets {
		for chatID := range m.chats[opID] {
			if _, ok := actual[chatID]; ok {
				resolved[chatID] = struct{}{}
			}
		}
	}

	out := make([]int64, 0, len(resolved))
	for id := range resolved {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubscriptionCounts tallies active subscriptions by chat kind.
// A chat counts only while it is still tracked in one of the given sets.
func (m *NodeOperatorChats) SubscriptionCounts(users, groups, channels *ChatIDSet) SubscriptionCounts {
	var counts SubscriptionCounts
	for _, set := range m.chats {
		active := 0
		for chatID := range set {
			switch {
			case users.Contains(chatID):
				counts.Users++
			case groups.Contains(chatID):
				counts.Groups++
			case channels.Contains(chatID):
				counts.Channels++
			default:
				continue
			}
			active++
		}
		if active > 0 {
			counts.Operators++
		}
	}
	return counts
}

// CountsByOperator tallies active subscriptions per node operator, broken
// down by chat kind. Operators with no active subscribed chats are omitted.
func (m *NodeOperatorChats) CountsByOperator(users, groups, channels *ChatIDSet) map[string]SubscriptionCounts {
	out := make(map[string]SubscriptionCounts)
	for opID, set := range m.chats {
		var counts SubscriptionCounts
		for chatID := range set {
			switch {
			case users.Contains(chatID):
				counts.Users++
			case groups.Contains(chatID):
				counts.Groups++
			case channels.Contains(chatID):
				counts.Channels++
			}
		}
		if counts.Total() > 0 {
			counts.Operators = 1
			out[opID] = counts
		}
	}
	return out
}

// MigrateChat replaces oldID with newID in every operator's subscriber set.
// Returns the number of operators whose sets were touched.
func (m *NodeOperatorChats) MigrateChat(oldID, newID int64) int {
	touched := 0
	for _, set := range m.chats {
		if _, ok := set[oldID]; !ok {
			continue
		}
		delete(set, oldID)
		set[newID] = struct{}{}
		touched++
	}
	return touched
}

// Encode serializes the subscription map with sorted chat lists
func (m *NodeOperatorChats) Encode() []byte {
	out := make(map[string][]int64, len(m.chats))
	for opID := range m.chats {
		chats := m.ChatsFor(opID)
		if chats == nil {
			chats = []int64{}
		}
		out[opID] = chats
	}
	data, _ := json.Marshal(out)
	return data
}

// NodeOperatorSubscriptions tracks, per chat, which node operators the chat
// follows. It is the inverse of NodeOperatorChats and drives the
// /unfollow listing in the bot.
type NodeOperatorSubscriptions struct {
	follows map[int64]map[string]struct{}
}

// NewNodeOperatorSubscriptions creates an empty follow index
func NewNodeOperatorSubscriptions() *NodeOperatorSubscriptions {
	return &NodeOperatorSubscriptions{follows: make(map[int64]map[string]struct{})}
}

// LoadChat decodes one chat's persisted follow list, normalizing entries
// and skipping garbage with a warning.
func (n *NodeOperatorSubscriptions) LoadChat(chatID int64, data []byte, logger *zap.Logger) {
	if len(data) == 0 {
		return
	}

	var raw []interface{}
	if err := decodeJSON(data, &raw); err != nil {
		logger.Warn("discarding unreadable follow list", zap.Int64("chatId", chatID), zap.Error(err))
		return
	}

	set := make(map[string]struct{}, len(raw))
	for _, v := range raw {
		opID, ok := operatorIDFromJSON(v)
		if !ok {
			logger.Warn("skipping unrecognized node operator entry",
				zap.Int64("chatId", chatID), zap.Any("entry", v))
			continue
		}
		set[opID] = struct{}{}
	}
	n.follows[chatID] = set
}

// Follow records that a chat follows a node operator.
// Returns true if this is a new follow.
func (n *NodeOperatorSubscriptions) Follow(chatID int64, opID string) bool {
	set, ok := n.follows[chatID]
	if !ok {
		set = make(map[string]struct{})
		n.follows[chatID] = set
	}
	if _, ok := set[opID]; ok {
		return false
	}
	set[opID] = struct{}{}
	return true
}

// Unfollow removes a chat's follow of a node operator.
// Returns true if the chat was following it.
func (n *NodeOperatorSubscriptions) Unfollow(chatID int64, opID string) bool {
	set, ok := n.follows[chatID]
	if !ok {
		return false
	}
	if _, ok := set[opID]; !ok {
		return false
	}
	delete(set, opID)
	return true
}

// Following returns the node operator ids a chat follows, in numeric order
func (n *NodeOperatorSubscriptions) Following(chatID int64) []string {
	set, ok := n.follows[chatID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for opID := range set {
		out = append(out, opID)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.ParseUint(out[i], 10, 64)
		b, _ := strconv.ParseUint(out[j], 10, 64)
		return a < b
	})
	return out
}

// HasChat checks whether a chat has a follow list
func (n *NodeOperatorSubscriptions) HasChat(chatID int64) bool {
	_, ok := n.follows[chatID]
	return ok
}

// MigrateChat moves a chat's follow list to a new chat id, merging with any
// follows the new id already has. Returns true if anything moved.
func (n *NodeOperatorSubscriptions) MigrateChat(oldID, newID int64) bool {
	old, ok := n.follows[oldID]
	if !ok {
		return false
	}
	delete(n.follows, oldID)

	if existing, ok := n.follows[newID]; ok {
		for opID := range old {
			existing[opID] = struct{}{}
		}
	} else {
		n.follows[newID] = old
	}
	return true
}

// EncodeChat serializes one chat's follow list
func (n *NodeOperatorSubscriptions) EncodeChat(chatID int64) []byte {
	ops := n.Following(chatID)
	if ops == nil {
		ops = []string{}
	}
	data, _ := json.Marshal(ops)
	return data
}
