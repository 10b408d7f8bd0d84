package kv

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/vedran77/hadra/internal/domain"
	"github.com/vedran77/hadra/internal/storage"
)

type MessageRepo struct {
	store *storage.Store
	now   func() time.Time
}

func NewMessageRepo(store *storage.Store) *MessageRepo {
	return &MessageRepo{store: store, now: time.Now}
}

// Create appends msg to the log, assigning an id and timestamp when they are missing.
// A message is a story exactly when it is addressed to the story channel.
func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now()
	}
	if msg.ID == "" {
		msg.ID = domain.NewMessageID(msg.Timestamp)
	}
	if msg.IsStory {
		msg.ReceiverID = domain.StoryChannelID
	}
	if msg.ReceiverID == domain.StoryChannelID {
		msg.IsStory = true
	}
	return r.store.Update(ctx, func(tx *storage.Tx) error {
		messages, err := tx.Messages()
		if err != nil {
			return err
		}
		return tx.PutMessages(append(messages, *msg))
	})
}

// ListConversation returns every message between userA and userB, oldest first.
// Passing domain.StoryChannelID as userB yields userA's stories.
func (r *MessageRepo) ListConversation(ctx context.Context, userA, userB string) ([]domain.Message, error) {
	return r.filter(ctx, func(m domain.Message) bool { return m.Involves(userA, userB) })
}

func (r *MessageRepo) ListByParticipant(ctx context.Context, userID string) ([]domain.Message, error) {
	return r.filter(ctx, func(m domain.Message) bool {
		return !m.IsStory && (m.SenderID == userID || m.ReceiverID == userID)
	})
}

func (r *MessageRepo) ListStories(ctx context.Context, authorIDs ...string) ([]domain.Message, error) {
	return r.filter(ctx, func(m domain.Message) bool {
		return m.IsStory && m.ReceiverID == domain.StoryChannelID && slices.Contains(authorIDs, m.SenderID)
	})
}

func (r *MessageRepo) filter(ctx context.Context, keep func(domain.Message) bool) ([]domain.Message, error) {
	selected := []domain.Message{}
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		messages, err := tx.Messages()
		if err != nil {
			return err
		}
		for _, m := range messages {
			if keep(m) {
				selected = append(selected, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Stable so equal timestamps keep log order.
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Timestamp.Before(selected[j].Timestamp)
	})
	return selected, nil
}
