package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// InfiniteContextEngine replays a conversation's full turn history from its
// Kafka event topic, so query rewrite (spec §4.6's "conversational history"
// input) is never truncated to whatever fits in a client-held buffer.
type InfiniteContextEngine struct {
	reader     *kafka.Reader
	compressor *ContextCompressor
	cache      *ContextCache
	logger     *logrus.Logger
	mu         sync.RWMutex
}

// ContextCache caches replayed conversations, evicting the entry that was
// cached earliest when full
type ContextCache struct {
	cache   map[string]*CachedContext
	maxSize int
	ttl     time.Duration
	mu      sync.RWMutex
}

// CachedContext represents a cached conversation context
type CachedContext struct {
	ConversationID string
	Messages       []MessageData
	Entities       []EntityData
	Context        *ContextData
	CachedAt       time.Time
	AccessCount    int
}

// NewInfiniteContextEngine creates a new infinite context engine reading
// conversation events from the given Kafka topic.
func NewInfiniteContextEngine(
	brokers []string,
	topic string,
	compressor *ContextCompressor,
	logger *logrus.Logger,
) *InfiniteContextEngine {
	if logger == nil {
		logger = logrus.New()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "ragcore-conversation-replay",
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &InfiniteContextEngine{
		reader:     reader,
		compressor: compressor,
		cache: &ContextCache{
			cache:   make(map[string]*CachedContext),
			maxSize: 100,
			ttl:     30 * time.Minute,
		},
		logger: logger,
	}
}

// Close releases the underlying Kafka reader.
func (ice *InfiniteContextEngine) Close() error {
	if ice.reader == nil {
		return nil
	}
	return ice.reader.Close()
}

// ReplayConversation replays an entire conversation from its Kafka event
// stream. No token limit is applied here; the full history is preserved.
func (ice *InfiniteContextEngine) ReplayConversation(ctx context.Context, conversationID string) ([]MessageData, error) {
	ice.mu.Lock()
	defer ice.mu.Unlock()

	ice.logger.WithField("conversation_id", conversationID).Debug("replaying conversation from kafka")

	if cached := ice.cache.Get(conversationID); cached != nil {
		return cached.Messages, nil
	}

	events, err := ice.fetchConversationEvents(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation events: %w", err)
	}

	if len(events) == 0 {
		return []MessageData{}, nil
	}

	messages, entities := ice.reconstructFromEvents(events)
	contextData := ice.calculateContext(messages, entities)

	ice.cache.Put(conversationID, &CachedContext{
		ConversationID: conversationID,
		Messages:       messages,
		Entities:       entities,
		Context:        contextData,
		CachedAt:       time.Now(),
	})

	ice.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"message_count":   len(messages),
		"entity_count":    len(entities),
		"total_tokens":    contextData.TotalTokens,
	}).Info("conversation replayed")

	return messages, nil
}

// ReplayWithCompression replays conversation and compresses if needed
func (ice *InfiniteContextEngine) ReplayWithCompression(
	ctx context.Context,
	conversationID string,
	maxTokens int,
) ([]MessageData, *CompressionData, error) {
	messages, err := ice.ReplayConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	totalTokens := ice.countTokens(messages)
	if totalTokens <= int64(maxTokens) {
		return messages, nil, nil
	}

	cached := ice.cache.Get(conversationID)
	var entities []EntityData
	if cached != nil {
		entities = cached.Entities
	}

	compressed, compressionData, err := ice.compressor.Compress(ctx, messages, entities, maxTokens)
	if err != nil {
		return nil, nil, fmt.Errorf("compression failed: %w", err)
	}

	ice.logger.WithFields(logrus.Fields{
		"conversation_id":     conversationID,
		"original_messages":   len(messages),
		"compressed_messages": len(compressed),
		"compression_ratio":   compressionData.CompressionRatio,
	}).Info("conversation compressed")

	return compressed, compressionData, nil
}

// HistoryText flattens the last maxTurns messages of a conversation into the
// plain-text `history` string the expansion package's query rewrite step
// expects (spec §4.6's expand(query, history?, summary?) contract).
func (ice *InfiniteContextEngine) HistoryText(ctx context.Context, conversationID string, maxTurns int) (string, error) {
	messages, err := ice.ReplayConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "", nil
	}
	if maxTurns > 0 && len(messages) > maxTurns {
		messages = messages[len(messages)-maxTurns:]
	}

	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// GetConversationSnapshot creates a snapshot of conversation state
func (ice *InfiniteContextEngine) GetConversationSnapshot(ctx context.Context, conversationID string) (*ConversationSnapshot, error) {
	messages, err := ice.ReplayConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	cached := ice.cache.Get(conversationID)
	if cached == nil {
		return nil, fmt.Errorf("conversation not in cache after replay")
	}

	return &ConversationSnapshot{
		SnapshotID:     uuid.New().String(),
		ConversationID: conversationID,
		Timestamp:      time.Now(),
		Messages:       messages,
		Entities:       cached.Entities,
		Context:        cached.Context,
	}, nil
}

// fetchConversationEvents reads every event for conversationID from the
// reader's current position to the topic's latest offset, identifying
// membership by the "conversation_id" message header.
func (ice *InfiniteContextEngine) fetchConversationEvents(ctx context.Context, conversationID string) ([]*ConversationEvent, error) {
	var events []*ConversationEvent

	for {
		readCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		msg, err := ice.reader.ReadMessage(readCtx)
		cancel()
		if err != nil {
			// A timeout just means the topic has no more pending events
			// right now; treat it as end-of-stream rather than a failure.
			break
		}

		if !hasConversationHeader(msg.Headers, conversationID) {
			continue
		}

		var event ConversationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			ice.logger.WithError(err).Warn("skipping malformed conversation event")
			continue
		}
		events = append(events, &event)
	}

	return events, nil
}

func hasConversationHeader(headers []kafka.Header, conversationID string) bool {
	for _, h := range headers {
		if h.Key == "conversation_id" && string(h.Value) == conversationID {
			return true
		}
	}
	return false
}

// reconstructFromEvents reconstructs conversation from events
func (ice *InfiniteContextEngine) reconstructFromEvents(events []*ConversationEvent) ([]MessageData, []EntityData) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].SequenceNumber < events[j].SequenceNumber
	})

	messages := []MessageData{}
	entityMap := make(map[string]EntityData)

	for _, event := range events {
		switch event.EventType {
		case ConversationEventMessageAdded:
			if event.Message != nil {
				messages = append(messages, *event.Message)
			}

		case ConversationEventEntityExtracted:
			for _, entity := range event.Entities {
				entityMap[entity.EntityID] = entity
			}

		case ConversationEventDebateRound:
			if event.DebateRound != nil {
				messages = append(messages, MessageData{
					MessageID: event.DebateRound.RoundID,
					Role:      "assistant",
					Content:   event.DebateRound.Response,
					Model:     event.DebateRound.Model,
					Tokens:    event.DebateRound.TokensUsed,
					CreatedAt: event.DebateRound.CreatedAt,
				})
			}

		case ConversationEventCompressed:
			continue
		}
	}

	entities := make([]EntityData, 0, len(entityMap))
	for _, entity := range entityMap {
		entities = append(entities, entity)
	}

	return messages, entities
}

// calculateContext calculates context data from messages and entities
func (ice *InfiniteContextEngine) calculateContext(messages []MessageData, entities []EntityData) *ContextData {
	totalTokens := ice.countTokens(messages)

	return &ContextData{
		MessageCount:      len(messages),
		TotalTokens:       totalTokens,
		EntityCount:       len(entities),
		ContextWindow:     128000,
		ContextUsageRatio: float64(totalTokens) / 128000.0,
	}
}

// countTokens estimates token count from messages
func (ice *InfiniteContextEngine) countTokens(messages []MessageData) int64 {
	var total int64
	for _, msg := range messages {
		if msg.Tokens > 0 {
			total += int64(msg.Tokens)
		} else {
			total += int64(len(msg.Content) / 4)
		}
	}
	return total
}

// ContextCache methods

// Get retrieves cached context
func (cc *ContextCache) Get(conversationID string) *CachedContext {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	cached, exists := cc.cache[conversationID]
	if !exists {
		return nil
	}

	if time.Since(cached.CachedAt) > cc.ttl {
		delete(cc.cache, conversationID)
		return nil
	}

	cached.AccessCount++
	return cached
}

// Put stores context in cache
func (cc *ContextCache) Put(conversationID string, context *CachedContext) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if len(cc.cache) >= cc.maxSize {
		cc.evictOldest()
	}

	cc.cache[conversationID] = context
}

// evictOldest removes the entry with the oldest CachedAt time; reads do not
// refresh CachedAt, so access order is not considered
func (cc *ContextCache) evictOldest() {
	var oldestID string
	oldestTime := time.Now()

	for id, cached := range cc.cache {
		if cached.CachedAt.Before(oldestTime) {
			oldestTime = cached.CachedAt
			oldestID = id
		}
	}

	if oldestID != "" {
		delete(cc.cache, oldestID)
	}
}

// Clear clears the cache
func (cc *ContextCache) Clear() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache = make(map[string]*CachedContext)
}

// Size returns cache size
func (cc *ContextCache) Size() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}
