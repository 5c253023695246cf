// Package services contains the application services that sit between
// the HTTP handlers and storage.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/funecosystem/angel-ai/internal/engine"
	"github.com/funecosystem/angel-ai/internal/storage"
	"github.com/funecosystem/angel-ai/pkg/types"
)

var (
	// ErrEmptyMessage is returned when a turn is attempted with no content.
	ErrEmptyMessage = errors.New("services: message content is required")

	// ErrNotEditable is returned when the target message is not a user message.
	ErrNotEditable = errors.New("services: only user messages can be edited")
)

// Broadcaster pushes realtime events to connected clients. The websocket
// hub implements it; a nil Broadcaster disables realtime delivery.
type Broadcaster interface {
	// MessageCreated announces a newly stored message.
	MessageCreated(conversationID string, msg *types.Message)

	// ConversationTruncated announces that messages from seq onward were
	// removed, so clients can drop stale entries.
	ConversationTruncated(conversationID string, fromSeq int64)

	// TypingChanged announces whether the persona is composing a reply.
	TypingChanged(conversationID string, typing bool, status string)
}

// TurnResult is the outcome of one chat turn.
type TurnResult struct {
	Conversation *types.Conversation `json:"conversation"`
	UserMessage  *types.Message      `json:"user_message,omitempty"`
	AngelMessage *types.Message      `json:"angel_message"`
}

// ChatService orchestrates conversations: it owns the turn sequence of
// persisting the user message, rebuilding session state from history,
// generating the reply, and persisting and broadcasting it.
type ChatService struct {
	store       storage.ChatStore
	engine      *engine.Engine
	broadcaster Broadcaster
	typingDelay time.Duration
}

// NewChatService creates a chat service. broadcaster may be nil.
func NewChatService(store storage.ChatStore, eng *engine.Engine, broadcaster Broadcaster, typingDelay time.Duration) *ChatService {
	return &ChatService{
		store:       store,
		engine:      eng,
		broadcaster: broadcaster,
		typingDelay: typingDelay,
	}
}

// SetBroadcaster wires the realtime hub in after construction. The hub
// is created by the server, which starts after the services. Call this
// before serving traffic.
func (s *ChatService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Greeting returns the canned opening message for conversations with no
// history.
func (s *ChatService) Greeting() string {
	return s.engine.Greeting()
}

// ListConversations returns the user's conversations, newest first.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]*types.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

// GetConversation returns one of the user's conversations with its
// messages.
func (s *ChatService) GetConversation(ctx context.Context, userID, conversationID string) (*types.Conversation, []*types.Message, error) {
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// RenameConversation updates the title of one of the user's conversations.
func (s *ChatService) RenameConversation(ctx context.Context, userID, conversationID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title is required", storage.ErrInvalidInput)
	}
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.store.RenameConversation(ctx, conversationID, title)
}

// DeleteConversation removes one of the user's conversations.
func (s *ChatService) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.store.DeleteConversation(ctx, conversationID)
}

// HandleTurn runs one chat turn. With an empty conversationID a new
// conversation is created, titled after the first message. The session
// state (the user's name) is rebuilt from the conversation history
// before the new message is stored, so the current utterance can still
// count as a name introduction.
func (s *ChatService) HandleTurn(ctx context.Context, userID, conversationID, content string) (*TurnResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	var conv *types.Conversation
	var err error
	if conversationID == "" {
		conv = &types.Conversation{
			ID:     uuid.NewString(),
			UserID: userID,
			Title:  s.engine.ConversationTitle(content),
		}
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			return nil, err
		}
	} else {
		conv, err = s.ownedConversation(ctx, userID, conversationID)
		if err != nil {
			return nil, err
		}
	}

	session, err := s.rebuildSession(ctx, conv.ID, 0)
	if err != nil {
		return nil, err
	}

	userMsg := &types.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           types.RoleUser,
		Content:        content,
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}
	s.broadcastMessage(conv.ID, userMsg)

	reply, err := s.compose(ctx, conv.ID, func() string {
		return session.Reply(content)
	})
	if err != nil {
		return nil, err
	}

	angelMsg, err := s.appendReply(ctx, conv.ID, reply)
	if err != nil {
		return nil, err
	}

	return &TurnResult{Conversation: conv, UserMessage: userMsg, AngelMessage: angelMsg}, nil
}

// EditMessage replaces the content of a user message, discards every
// later message, and regenerates the reply. The session state used for
// the regenerated reply is rebuilt from the messages before the edited
// one, as if the conversation had always gone this way.
func (s *ChatService) EditMessage(ctx context.Context, userID, messageID, content string) (*TurnResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Role != types.RoleUser {
		return nil, ErrNotEditable
	}
	conv, err := s.ownedConversation(ctx, userID, msg.ConversationID)
	if err != nil {
		return nil, err
	}

	session, err := s.rebuildSession(ctx, conv.ID, msg.Seq)
	if err != nil {
		return nil, err
	}

	if err := s.store.EditMessageTruncate(ctx, messageID, content); err != nil {
		return nil, err
	}
	if s.broadcaster != nil {
		s.broadcaster.ConversationTruncated(conv.ID, msg.Seq)
	}
	msg.Content = content
	msg.Edited = true

	reply, err := s.compose(ctx, conv.ID, func() string {
		return session.EditedReply(content)
	})
	if err != nil {
		return nil, err
	}

	angelMsg, err := s.appendReply(ctx, conv.ID, reply)
	if err != nil {
		return nil, err
	}

	return &TurnResult{Conversation: conv, UserMessage: msg, AngelMessage: angelMsg}, nil
}

// DeleteMessage removes a message and everything after it.
func (s *ChatService) DeleteMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := s.ownedConversation(ctx, userID, msg.ConversationID); err != nil {
		return err
	}
	if err := s.store.DeleteMessageCascade(ctx, messageID); err != nil {
		return err
	}
	if s.broadcaster != nil {
		s.broadcaster.ConversationTruncated(msg.ConversationID, msg.Seq)
	}
	return nil
}

// CanAccess reports whether the user owns the conversation. The
// websocket hub uses it to authorize subscriptions.
func (s *ChatService) CanAccess(ctx context.Context, userID, conversationID string) bool {
	_, err := s.ownedConversation(ctx, userID, conversationID)
	return err == nil
}

// ownedConversation loads a conversation and hides it behind ErrNotFound
// when it belongs to a different user.
func (s *ChatService) ownedConversation(ctx context.Context, userID, conversationID string) (*types.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return conv, nil
}

// rebuildSession replays the stored user messages, oldest first, into a
// fresh session. With beforeSeq > 0 only messages strictly before that
// sequence number count.
func (s *ChatService) rebuildSession(ctx context.Context, conversationID string, beforeSeq int64) (*engine.Session, error) {
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	session := s.engine.NewSession()
	for _, msg := range msgs {
		if beforeSeq > 0 && msg.Seq >= beforeSeq {
			break
		}
		if msg.Role == types.RoleUser {
			session.Observe(msg.Content)
		}
	}
	return session, nil
}

// compose waits out the typing delay, keeping clients informed, then
// builds the reply text.
func (s *ChatService) compose(ctx context.Context, conversationID string, build func() string) (string, error) {
	if s.broadcaster != nil {
		s.broadcaster.TypingChanged(conversationID, true, s.engine.TypingStatus())
		defer s.broadcaster.TypingChanged(conversationID, false, "")
	}

	if s.typingDelay > 0 {
		timer := time.NewTimer(s.typingDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return build(), nil
}

func (s *ChatService) appendReply(ctx context.Context, conversationID, reply string) (*types.Message, error) {
	angelMsg := &types.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           types.RoleAngel,
		Content:        reply,
	}
	if err := s.store.AppendMessage(ctx, angelMsg); err != nil {
		return nil, err
	}
	s.broadcastMessage(conversationID, angelMsg)
	return angelMsg, nil
}

func (s *ChatService) broadcastMessage(conversationID string, msg *types.Message) {
	if s.broadcaster != nil {
		s.broadcaster.MessageCreated(conversationID, msg)
	}
}
