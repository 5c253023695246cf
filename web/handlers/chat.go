package handlers

import (
	"net/http"

	"github.com/funecosystem/angel-ai/internal/services"
	"github.com/funecosystem/angel-ai/pkg/types"
)

// ChatHandlers serves conversations and messages.
type ChatHandlers struct {
	chat *services.ChatService
}

// NewChatHandlers creates the chat handlers.
func NewChatHandlers(chat *services.ChatService) *ChatHandlers {
	return &ChatHandlers{chat: chat}
}

type sendMessageRequest struct {
	// ConversationID is empty when the message starts a new conversation.
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

type renameConversationRequest struct {
	Title string `json:"title"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

type conversationResponse struct {
	Conversation *types.Conversation `json:"conversation"`
	Messages     []*types.Message    `json:"messages"`
}

type greetingResponse struct {
	Greeting string `json:"greeting"`
}

// ListConversations handles GET /api/conversations.
func (h *ChatHandlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	convs, err := h.chat.ListConversations(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// SendMessage handles POST /api/conversations. One call runs a full chat
// turn; with no conversation_id a new conversation is created.
func (h *ChatHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.chat.HandleTurn(r.Context(), user.ID, req.ConversationID, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if req.ConversationID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// GetConversation handles GET /api/conversations/{id}.
func (h *ChatHandlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	conv, msgs, err := h.chat.GetConversation(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{Conversation: conv, Messages: msgs})
}

// RenameConversation handles PATCH /api/conversations/{id}.
func (h *ChatHandlers) RenameConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req renameConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.chat.RenameConversation(r.Context(), user.ID, r.PathValue("id"), req.Title); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteConversation handles DELETE /api/conversations/{id}.
func (h *ChatHandlers) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	if err := h.chat.DeleteConversation(r.Context(), user.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EditMessage handles PATCH /api/messages/{id}. Editing a user message
// discards every later message and regenerates the reply.
func (h *ChatHandlers) EditMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req editMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.chat.EditMessage(r.Context(), user.ID, r.PathValue("id"), req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeleteMessage handles DELETE /api/messages/{id}. The message and
// everything after it are removed.
func (h *ChatHandlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	if err := h.chat.DeleteMessage(r.Context(), user.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Greeting handles GET /api/persona/greeting.
func (h *ChatHandlers) Greeting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, greetingResponse{Greeting: h.chat.Greeting()})
}
