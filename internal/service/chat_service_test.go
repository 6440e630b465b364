package service

import (
	"context"
	"testing"
	"time"

	"parley/internal/featureflags"
	"parley/internal/models"
	"parley/internal/notifications"
	"parley/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type convRepoStub struct {
	saveFn               func(context.Context, *models.Conversation) error
	findByIDFn           func(context.Context, models.ConversationID) (*models.Conversation, error)
	findPrivateBetweenFn func(context.Context, models.UserID, models.UserID) (*models.Conversation, error)
	listForUserFn        func(context.Context, models.UserID, int, int) ([]*models.Conversation, error)
	searchByNameFn       func(context.Context, models.UserID, string, int, int) ([]*models.Conversation, error)
	updateLastMessageFn  func(context.Context, models.ConversationID, models.MessageID, time.Time) error
}

func (s *convRepoStub) Save(ctx context.Context, conv *models.Conversation) error {
	return s.saveFn(ctx, conv)
}
func (s *convRepoStub) FindByID(ctx context.Context, id models.ConversationID) (*models.Conversation, error) {
	return s.findByIDFn(ctx, id)
}
func (s *convRepoStub) FindPrivateBetween(ctx context.Context, a, b models.UserID) (*models.Conversation, error) {
	return s.findPrivateBetweenFn(ctx, a, b)
}
func (s *convRepoStub) ListForUser(ctx context.Context, userID models.UserID, limit, offset int) ([]*models.Conversation, error) {
	return s.listForUserFn(ctx, userID, limit, offset)
}
func (s *convRepoStub) SearchByName(ctx context.Context, userID models.UserID, term string, limit, offset int) ([]*models.Conversation, error) {
	return s.searchByNameFn(ctx, userID, term, limit, offset)
}
func (s *convRepoStub) UpdateLastMessage(ctx context.Context, id models.ConversationID, messageID models.MessageID, at time.Time) error {
	return s.updateLastMessageFn(ctx, id, messageID, at)
}

type msgRepoStub struct {
	saveFn               func(context.Context, *models.Message) error
	findByIDFn           func(context.Context, models.MessageID) (*models.Message, error)
	listByConversationFn func(context.Context, models.ConversationID, int, int) ([]*models.Message, error)
	searchContentFn      func(context.Context, []models.ConversationID, string, int, int) ([]*models.Message, error)
	deleteFn             func(context.Context, models.MessageID) error
}

func (s *msgRepoStub) Save(ctx context.Context, msg *models.Message) error {
	return s.saveFn(ctx, msg)
}
func (s *msgRepoStub) FindByID(ctx context.Context, id models.MessageID) (*models.Message, error) {
	return s.findByIDFn(ctx, id)
}
func (s *msgRepoStub) ListByConversation(ctx context.Context, convID models.ConversationID, limit, offset int) ([]*models.Message, error) {
	return s.listByConversationFn(ctx, convID, limit, offset)
}
func (s *msgRepoStub) SearchContent(ctx context.Context, convIDs []models.ConversationID, term string, limit, offset int) ([]*models.Message, error) {
	return s.searchContentFn(ctx, convIDs, term, limit, offset)
}
func (s *msgRepoStub) Delete(ctx context.Context, id models.MessageID) error {
	return s.deleteFn(ctx, id)
}

type outboxStub struct {
	appended []models.EventEnvelope
	topics   []string
}

func (s *outboxStub) Append(_ context.Context, topic string, env models.EventEnvelope) error {
	s.appended = append(s.appended, env)
	s.topics = append(s.topics, topic)
	return nil
}
func (s *outboxStub) PendingBatch(context.Context, int) ([]repository.OutboxEntry, error) {
	return nil, nil
}
func (s *outboxStub) MarkPublished(context.Context, string) error { return nil }
func (s *outboxStub) CountPending(context.Context) (int64, error) { return 0, nil }

func noopConvRepo() *convRepoStub {
	return &convRepoStub{
		saveFn:     func(context.Context, *models.Conversation) error { return nil },
		findByIDFn: func(context.Context, models.ConversationID) (*models.Conversation, error) { return nil, nil },
		findPrivateBetweenFn: func(context.Context, models.UserID, models.UserID) (*models.Conversation, error) {
			return nil, nil
		},
		listForUserFn: func(context.Context, models.UserID, int, int) ([]*models.Conversation, error) {
			return nil, nil
		},
		searchByNameFn: func(context.Context, models.UserID, string, int, int) ([]*models.Conversation, error) {
			return nil, nil
		},
		updateLastMessageFn: func(context.Context, models.ConversationID, models.MessageID, time.Time) error {
			return nil
		},
	}
}

func noopMsgRepo() *msgRepoStub {
	return &msgRepoStub{
		saveFn:     func(context.Context, *models.Message) error { return nil },
		findByIDFn: func(context.Context, models.MessageID) (*models.Message, error) { return nil, nil },
		listByConversationFn: func(context.Context, models.ConversationID, int, int) ([]*models.Message, error) {
			return nil, nil
		},
		searchContentFn: func(context.Context, []models.ConversationID, string, int, int) ([]*models.Message, error) {
			return nil, nil
		},
		deleteFn: func(context.Context, models.MessageID) error { return nil },
	}
}

func newTestChatService(convs repository.ConversationRepository, msgs repository.MessageRepository, outbox repository.OutboxRepository) *ChatService {
	return NewChatService(convs, msgs, outbox,
		notifications.NewNotifier(nil),
		featureflags.NewManager("typing_indicators=on"),
		"chat-events")
}

func groupConv(id models.ConversationID, participants ...models.UserID) *models.Conversation {
	return &models.Conversation{
		ID:           id,
		Type:         models.ConversationGroup,
		Participants: participants,
		CreatedBy:    participants[0],
	}
}

func TestChatService_CreateConversation_PrivateDedup(t *testing.T) {
	repo := noopConvRepo()
	repo.findPrivateBetweenFn = func(_ context.Context, a, b models.UserID) (*models.Conversation, error) {
		return &models.Conversation{ID: "existing", Type: models.ConversationPrivate,
			Participants: []models.UserID{a, b}}, nil
	}
	svc := newTestChatService(repo, noopMsgRepo(), &outboxStub{})

	_, err := svc.CreateConversation(context.Background(), models.NewConversationInput{
		Type:         models.ConversationPrivate,
		CreatorID:    "u1",
		Participants: []models.UserID{"u2"},
	})
	require.Error(t, err)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
}

func TestChatService_CreateConversation_Success(t *testing.T) {
	repo := noopConvRepo()
	var saved *models.Conversation
	repo.saveFn = func(_ context.Context, conv *models.Conversation) error {
		conv.ID = "c1"
		saved = conv
		return nil
	}
	outbox := &outboxStub{}
	svc := newTestChatService(repo, noopMsgRepo(), outbox)

	conv, err := svc.CreateConversation(context.Background(), models.NewConversationInput{
		Type:         models.ConversationPrivate,
		CreatorID:    "u1",
		Participants: []models.UserID{"u2"},
	})
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, models.ConversationID("c1"), conv.ID)

	require.Len(t, outbox.appended, 1)
	assert.Equal(t, models.EventConversationCreated, outbox.appended[0].Type)
	assert.Equal(t, "c1", outbox.appended[0].AggregateID)
	assert.Equal(t, "chat-events", outbox.topics[0])
}

func TestChatService_SendMessage_Forbidden(t *testing.T) {
	repo := noopConvRepo()
	repo.findByIDFn = func(context.Context, models.ConversationID) (*models.Conversation, error) {
		return groupConv("c1", "u1", "u2"), nil
	}
	msgs := noopMsgRepo()
	msgSaved := false
	msgs.saveFn = func(context.Context, *models.Message) error {
		msgSaved = true
		return nil
	}
	svc := newTestChatService(repo, msgs, &outboxStub{})

	_, err := svc.SendMessage(context.Background(), models.NewMessageInput{
		ConversationID: "c1",
		SenderID:       "u3",
		Content:        "hello",
	})
	require.Error(t, err)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
	assert.False(t, msgSaved, "no message should be persisted on authorization failure")
}

func TestChatService_SendMessage_Success(t *testing.T) {
	repo := noopConvRepo()
	repo.findByIDFn = func(context.Context, models.ConversationID) (*models.Conversation, error) {
		return groupConv("c1", "u1", "u2"), nil
	}
	var pointerMsg models.MessageID
	repo.updateLastMessageFn = func(_ context.Context, _ models.ConversationID, messageID models.MessageID, _ time.Time) error {
		pointerMsg = messageID
		return nil
	}

	msgs := noopMsgRepo()
	msgs.saveFn = func(_ context.Context, msg *models.Message) error {
		msg.ID = "m1"
		return nil
	}

	outbox := &outboxStub{}
	svc := newTestChatService(repo, msgs, outbox)

	msg, err := svc.SendMessage(context.Background(), models.NewMessageInput{
		ConversationID: "c1",
		SenderID:       "u1",
		Content:        "  hello  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, models.MessageID("m1"), pointerMsg)

	require.Len(t, outbox.appended, 1)
	assert.Equal(t, models.EventMessageSent, outbox.appended[0].Type)
	assert.Equal(t, "m1", outbox.appended[0].AggregateID)
}

func TestChatService_UpdateMessage_OnlySender(t *testing.T) {
	msgs := noopMsgRepo()
	msgs.findByIDFn = func(context.Context, models.MessageID) (*models.Message, error) {
		return &models.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "hi"}, nil
	}
	svc := newTestChatService(noopConvRepo(), msgs, &outboxStub{})

	_, err := svc.UpdateMessage(context.Background(), "m1", "u2", "edited")
	require.Error(t, err)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	updated, err := svc.UpdateMessage(context.Background(), "m1", "u1", "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)
}

func TestChatService_DeleteMessage_OnlySender(t *testing.T) {
	msgs := noopMsgRepo()
	msgs.findByIDFn = func(context.Context, models.MessageID) (*models.Message, error) {
		return &models.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "hi"}, nil
	}
	deleted := false
	msgs.deleteFn = func(context.Context, models.MessageID) error {
		deleted = true
		return nil
	}
	svc := newTestChatService(noopConvRepo(), msgs, &outboxStub{})

	err := svc.DeleteMessage(context.Background(), "m1", "u2")
	require.Error(t, err)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
	assert.False(t, deleted)

	require.NoError(t, svc.DeleteMessage(context.Background(), "m1", "u1"))
	assert.True(t, deleted)
}

func TestChatService_Receipts(t *testing.T) {
	newFixture := func(msg *models.Message) (*ChatService, *msgRepoStub, *outboxStub) {
		convs := noopConvRepo()
		convs.findByIDFn = func(context.Context, models.ConversationID) (*models.Conversation, error) {
			return groupConv("c1", "u1", "u2"), nil
		}
		msgs := noopMsgRepo()
		msgs.findByIDFn = func(context.Context, models.MessageID) (*models.Message, error) {
			return msg, nil
		}
		outbox := &outboxStub{}
		return newTestChatService(convs, msgs, outbox), msgs, outbox
	}

	t.Run("Non-participant is forbidden", func(t *testing.T) {
		svc, _, _ := newFixture(&models.Message{ID: "m1", ConversationID: "c1", SenderID: "u1"})
		err := svc.MarkRead(context.Background(), "m1", "u9")
		require.Error(t, err)
		assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
	})

	t.Run("Read implies delivered", func(t *testing.T) {
		msg := &models.Message{ID: "m1", ConversationID: "c1", SenderID: "u1"}
		svc, _, outbox := newFixture(msg)

		require.NoError(t, svc.MarkRead(context.Background(), "m1", "u2"))
		assert.True(t, msg.IsDeliveredTo("u2"))
		assert.True(t, msg.IsReadBy("u2"))
		require.Len(t, outbox.appended, 1)
		assert.Equal(t, models.EventMessageRead, outbox.appended[0].Type)
	})

	t.Run("Repeated receipts are no-ops", func(t *testing.T) {
		msg := &models.Message{ID: "m1", ConversationID: "c1", SenderID: "u1",
			DeliveredTo: []models.UserID{"u2"}, ReadBy: []models.UserID{"u2"}}
		svc, msgs, outbox := newFixture(msg)

		saves := 0
		msgs.saveFn = func(context.Context, *models.Message) error {
			saves++
			return nil
		}

		require.NoError(t, svc.MarkDelivered(context.Background(), "m1", "u2"))
		require.NoError(t, svc.MarkRead(context.Background(), "m1", "u2"))
		assert.Zero(t, saves)
		assert.Empty(t, outbox.appended)
	})
}

func TestChatService_Participants(t *testing.T) {
	t.Run("Empty list rejected", func(t *testing.T) {
		svc := newTestChatService(noopConvRepo(), noopMsgRepo(), &outboxStub{})
		_, err := svc.AddParticipants(context.Background(), "c1", "u1", nil)
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
		_, err = svc.RemoveParticipants(context.Background(), "c1", "u1", nil)
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	})

	t.Run("Requester must be a participant", func(t *testing.T) {
		convs := noopConvRepo()
		convs.findByIDFn = func(context.Context, models.ConversationID) (*models.Conversation, error) {
			return groupConv("c1", "u1", "u2"), nil
		}
		svc := newTestChatService(convs, noopMsgRepo(), &outboxStub{})

		_, err := svc.AddParticipants(context.Background(), "c1", "u9", []models.UserID{"u3"})
		assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
	})

	t.Run("Add and remove round-trip", func(t *testing.T) {
		conv := groupConv("c1", "u1", "u2")
		convs := noopConvRepo()
		convs.findByIDFn = func(context.Context, models.ConversationID) (*models.Conversation, error) {
			return conv, nil
		}
		outbox := &outboxStub{}
		svc := newTestChatService(convs, noopMsgRepo(), outbox)

		updated, err := svc.AddParticipants(context.Background(), "c1", "u1", []models.UserID{"u3"})
		require.NoError(t, err)
		assert.True(t, updated.IsParticipant("u3"))

		updated, err = svc.RemoveParticipants(context.Background(), "c1", "u1", []models.UserID{"u3"})
		require.NoError(t, err)
		assert.False(t, updated.IsParticipant("u3"))

		require.Len(t, outbox.appended, 2)
		assert.Equal(t, models.EventParticipantsAdded, outbox.appended[0].Type)
		assert.Equal(t, models.EventParticipantsRemoved, outbox.appended[1].Type)
	})
}

func TestChatService_SetTyping_FlagGated(t *testing.T) {
	convs := noopConvRepo()
	loaded := false
	convs.findByIDFn = func(context.Context, models.ConversationID) (*models.Conversation, error) {
		loaded = true
		return groupConv("c1", "u1"), nil
	}
	svc := NewChatService(convs, noopMsgRepo(), &outboxStub{},
		notifications.NewNotifier(nil),
		featureflags.NewManager("typing_indicators=off"),
		"chat-events")

	require.NoError(t, svc.SetTyping(context.Background(), "c1", "u1", true))
	assert.False(t, loaded, "disabled flag should short-circuit before any I/O")
}

func TestChatService_Queries(t *testing.T) {
	t.Run("Default pagination", func(t *testing.T) {
		convs := noopConvRepo()
		var gotLimit, gotOffset int
		convs.listForUserFn = func(_ context.Context, _ models.UserID, limit, offset int) ([]*models.Conversation, error) {
			gotLimit, gotOffset = limit, offset
			return nil, nil
		}
		svc := newTestChatService(convs, noopMsgRepo(), &outboxStub{})

		_, err := svc.ListConversations(context.Background(), "u1", 0, -5)
		require.NoError(t, err)
		assert.Equal(t, 20, gotLimit)
		assert.Equal(t, 0, gotOffset)
	})

	t.Run("GetMessages requires membership", func(t *testing.T) {
		convs := noopConvRepo()
		convs.findByIDFn = func(context.Context, models.ConversationID) (*models.Conversation, error) {
			return groupConv("c1", "u1"), nil
		}
		svc := newTestChatService(convs, noopMsgRepo(), &outboxStub{})

		_, err := svc.GetMessages(context.Background(), "c1", "u9", 20, 0)
		assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
	})

	t.Run("SearchMessages scoped to own conversations", func(t *testing.T) {
		convs := noopConvRepo()
		convs.listForUserFn = func(context.Context, models.UserID, int, int) ([]*models.Conversation, error) {
			return []*models.Conversation{groupConv("c1", "u1"), groupConv("c2", "u1")}, nil
		}
		msgs := noopMsgRepo()
		var scope []models.ConversationID
		msgs.searchContentFn = func(_ context.Context, convIDs []models.ConversationID, _ string, _, _ int) ([]*models.Message, error) {
			scope = convIDs
			return nil, nil
		}
		svc := newTestChatService(convs, msgs, &outboxStub{})

		_, err := svc.SearchMessages(context.Background(), "u1", "hello", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []models.ConversationID{"c1", "c2"}, scope)
	})

	t.Run("Blank search term rejected", func(t *testing.T) {
		svc := newTestChatService(noopConvRepo(), noopMsgRepo(), &outboxStub{})
		_, err := svc.SearchMessages(context.Background(), "u1", "   ", 0, 0)
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
		_, err = svc.SearchConversations(context.Background(), "u1", "", 0, 0)
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	})
}
