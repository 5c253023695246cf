package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funecosystem/angel-ai/internal/storage"
	"github.com/funecosystem/angel-ai/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUser(t *testing.T, store *Store) *types.User {
	t.Helper()
	user := &types.User{
		ID:           uuid.NewString(),
		Email:        "be@example.com",
		PasswordHash: "x",
		DisplayName:  "Bé",
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func seedConversation(t *testing.T, store *Store, userID string) *types.Conversation {
	t.Helper()
	conv := &types.Conversation{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  "Cuộc trò chuyện mới ✨",
	}
	require.NoError(t, store.CreateConversation(context.Background(), conv))
	return conv
}

func appendMsg(t *testing.T, store *Store, convID string, role types.Role, content string) *types.Message {
	t.Helper()
	msg := &types.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
	}
	require.NoError(t, store.AppendMessage(context.Background(), msg))
	return msg
}

func TestConversationLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store)

	conv := seedConversation(t, store, user.ID)

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.Title, got.Title)
	assert.Equal(t, user.ID, got.UserID)

	require.NoError(t, store.RenameConversation(ctx, conv.ID, "Tâm sự với Angel"))
	got, err = store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tâm sự với Angel", got.Title)

	require.NoError(t, store.DeleteConversation(ctx, conv.ID))
	_, err = store.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.DeleteConversation(ctx, conv.ID), storage.ErrNotFound)
}

func TestListConversationsOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store)

	first := seedConversation(t, store, user.ID)
	second := seedConversation(t, store, user.ID)

	// Appending a message bumps updated_at, moving the conversation to the top.
	time.Sleep(5 * time.Millisecond)
	appendMsg(t, store, first.ID, types.RoleUser, "con chào Angel")

	convs, err := store.ListConversations(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, second.ID, convs[1].ID)
}

func TestAppendMessageAssignsSequence(t *testing.T) {
	store := newTestStore(t)
	user := seedUser(t, store)
	conv := seedConversation(t, store, user.ID)

	m1 := appendMsg(t, store, conv.ID, types.RoleUser, "em tên là Mai")
	m2 := appendMsg(t, store, conv.ID, types.RoleAngel, "Chào bé Mai")
	m3 := appendMsg(t, store, conv.ID, types.RoleUser, "con buồn quá")

	assert.Equal(t, int64(1), m1.Seq)
	assert.Equal(t, int64(2), m2.Seq)
	assert.Equal(t, int64(3), m3.Seq)

	msgs, err := store.ListMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, m1.ID, msgs[0].ID)
	assert.Equal(t, m3.ID, msgs[2].ID)
}

func TestAppendMessageRejectsUnknownRole(t *testing.T) {
	store := newTestStore(t)
	user := seedUser(t, store)
	conv := seedConversation(t, store, user.ID)

	err := store.AppendMessage(context.Background(), &types.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           "system",
		Content:        "nope",
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestEditMessageTruncate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store)
	conv := seedConversation(t, store, user.ID)

	appendMsg(t, store, conv.ID, types.RoleUser, "em tên là Mai")
	appendMsg(t, store, conv.ID, types.RoleAngel, "Chào bé Mai")
	target := appendMsg(t, store, conv.ID, types.RoleUser, "con buồn quá")
	appendMsg(t, store, conv.ID, types.RoleAngel, "Angel hiểu mà")

	require.NoError(t, store.EditMessageTruncate(ctx, target.ID, "con vui lắm"))

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "con vui lắm", msgs[2].Content)
	assert.True(t, msgs[2].Edited)
	assert.False(t, msgs[0].Edited)
}

func TestDeleteMessageCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store)
	conv := seedConversation(t, store, user.ID)

	keep := appendMsg(t, store, conv.ID, types.RoleUser, "xin chào")
	target := appendMsg(t, store, conv.ID, types.RoleAngel, "chào con")
	appendMsg(t, store, conv.ID, types.RoleUser, "hỏi tiếp")

	require.NoError(t, store.DeleteMessageCascade(ctx, target.ID))

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, keep.ID, msgs[0].ID)

	assert.ErrorIs(t, store.DeleteMessageCascade(ctx, target.ID), storage.ErrNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store)

	err := store.CreateUser(ctx, &types.User{
		ID:           uuid.NewString(),
		Email:        "BE@example.com",
		PasswordHash: "y",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	// Lookup is case-insensitive too.
	user, err := store.GetUserByEmail(ctx, "BE@Example.Com")
	require.NoError(t, err)
	assert.Equal(t, "be@example.com", user.Email)
}

func TestKnowledgeCRUDAndPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		doc := &types.KnowledgeDoc{
			ID:      uuid.NewString(),
			Title:   "Lời dạy",
			Content: "Yêu thương vô điều kiện",
			Tags:    []string{"tình thương"},
			// Spread created_at so ordering is deterministic.
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
			UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.CreateDoc(ctx, doc))
	}

	page, err := store.ListDocs(ctx, storage.ListOptions{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Len(t, page.Items, 10)
	assert.True(t, page.HasMore)

	last, err := store.ListDocs(ctx, storage.ListOptions{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, last.Items, 5)
	assert.False(t, last.HasMore)

	doc := page.Items[0]
	assert.Equal(t, []string{"tình thương"}, doc.Tags)
	assert.Equal(t, 12, doc.EnergyLevel)

	doc.Content = "Ánh sáng dẫn đường"
	require.NoError(t, store.UpdateDoc(ctx, &doc))
	got, err := store.GetDoc(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ánh sáng dẫn đường", got.Content)

	require.NoError(t, store.DeleteDoc(ctx, doc.ID))
	_, err = store.GetDoc(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSettingsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetSetting(ctx, "persona_name")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetSetting(ctx, "persona_name", "Angel"))
	require.NoError(t, store.SetSetting(ctx, "persona_name", "Angel AI"))

	value, err := store.GetSetting(ctx, "persona_name")
	require.NoError(t, err)
	assert.Equal(t, "Angel AI", value)
}
