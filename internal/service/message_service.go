package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vedran77/hadra/internal/attachment"
	"github.com/vedran77/hadra/internal/domain"
	"github.com/vedran77/hadra/internal/repository"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyMessage     = errors.New("message needs content or an attachment")
	ErrMissingRecipient = errors.New("receiver id is required")
	ErrReservedReceiver = errors.New("receiver id is reserved for stories")
)

// Session tells the message service who is signed in.
type Session interface {
	CurrentUserID() string
}

type MessageService struct {
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	session     Session
	encoder     attachment.Encoder
	logger      *slog.Logger
	now         func() time.Time
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	session Session,
	encodeTimeout time.Duration,
	logger *slog.Logger,
) *MessageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		session:     session,
		encoder:     attachment.Encoder{Timeout: encodeTimeout},
		logger:      logger,
		now:         time.Now,
	}
}

type SendMessageInput struct {
	Content string
	Media   *attachment.File
	Audio   *attachment.File
}

// SendMessage validates and encodes the attachments, then appends the message
// to the log. It returns nil when nobody is signed in. Nothing is stored when
// any attachment is rejected or fails to encode.
func (s *MessageService) SendMessage(ctx context.Context, to domain.Recipient, input SendMessageInput) (*domain.Message, error) {
	senderID := s.session.CurrentUserID()
	if senderID == "" {
		return nil, nil
	}
	if !to.IsStory() {
		switch to.UserID {
		case "":
			return nil, ErrMissingRecipient
		case domain.StoryChannelID:
			return nil, ErrReservedReceiver
		}
	}
	if strings.TrimSpace(input.Content) == "" && input.Media == nil && input.Audio == nil {
		return nil, ErrEmptyMessage
	}

	mediaKind := attachment.KindUnknown
	if input.Media != nil {
		kind, err := attachment.Validate(*input.Media)
		if err != nil {
			return nil, err
		}
		mediaKind = kind
	}
	if input.Audio != nil {
		if mediaKind == attachment.KindAudio {
			return nil, fmt.Errorf("%w: only one audio attachment per message", attachment.ErrInvalidAttachment)
		}
		if err := attachment.ValidateAs(*input.Audio, attachment.KindAudio); err != nil {
			return nil, err
		}
	}

	var mediaURI, audioURI string
	g, gctx := errgroup.WithContext(ctx)
	if input.Media != nil {
		g.Go(func() error {
			uri, err := s.encoder.Encode(gctx, *input.Media, mediaKind)
			mediaURI = uri
			return err
		})
	}
	if input.Audio != nil {
		g.Go(func() error {
			uri, err := s.encoder.Encode(gctx, *input.Audio, attachment.KindAudio)
			audioURI = uri
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	msg := &domain.Message{
		ID:         domain.NewMessageID(now),
		SenderID:   senderID,
		ReceiverID: to.ReceiverID(),
		Content:    input.Content,
		Timestamp:  now,
		AudioURL:   audioURI,
		IsStory:    to.IsStory(),
	}
	switch mediaKind {
	case attachment.KindImage:
		msg.ImageURL = mediaURI
	case attachment.KindVideo:
		msg.VideoURL = mediaURI
	case attachment.KindPDF:
		msg.FileURL = mediaURI
		msg.FileType = string(attachment.KindPDF)
	case attachment.KindAudio:
		msg.AudioURL = mediaURI
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	s.logger.Debug("message stored", "id", msg.ID, "story", msg.IsStory)
	return msg, nil
}

// CreateStory posts onto the signed in user's story channel.
func (s *MessageService) CreateStory(ctx context.Context, content string, media *attachment.File) (*domain.Message, error) {
	return s.SendMessage(ctx, domain.Story(), SendMessageInput{Content: content, Media: media})
}

// GetMessages returns the conversation with otherUserID, oldest first.
// Stories are left out unless includeStories is set.
func (s *MessageService) GetMessages(ctx context.Context, otherUserID string, includeStories bool) ([]domain.Message, error) {
	me := s.session.CurrentUserID()
	if me == "" {
		return []domain.Message{}, nil
	}
	messages, err := s.messageRepo.ListConversation(ctx, me, otherUserID)
	if err != nil {
		return nil, err
	}
	if includeStories {
		return messages, nil
	}
	direct := messages[:0]
	for _, m := range messages {
		if !m.IsStory {
			direct = append(direct, m)
		}
	}
	return direct, nil
}

// GetStories returns the signed in user's own stories.
func (s *MessageService) GetStories(ctx context.Context) ([]domain.Message, error) {
	me := s.session.CurrentUserID()
	if me == "" {
		return []domain.Message{}, nil
	}
	return s.messageRepo.ListConversation(ctx, me, domain.StoryChannelID)
}

// GetFriendStories returns the stories posted by the signed in user's friends.
func (s *MessageService) GetFriendStories(ctx context.Context) ([]domain.Message, error) {
	me := s.session.CurrentUserID()
	if me == "" {
		return []domain.Message{}, nil
	}
	user, err := s.userRepo.GetByID(ctx, me)
	if err != nil {
		return nil, err
	}
	if user == nil || len(user.Friends) == 0 {
		return []domain.Message{}, nil
	}
	return s.messageRepo.ListStories(ctx, user.Friends...)
}

// ListConversations summarises everyone the signed in user has exchanged
// direct messages with, most recent first.
func (s *MessageService) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	me := s.session.CurrentUserID()
	if me == "" {
		return []domain.Conversation{}, nil
	}
	messages, err := s.messageRepo.ListByParticipant(ctx, me)
	if err != nil {
		return nil, err
	}

	byPeer := map[string]*domain.Conversation{}
	for _, m := range messages {
		peer := m.ReceiverID
		if peer == me {
			peer = m.SenderID
		}
		conv, ok := byPeer[peer]
		if !ok {
			conv = &domain.Conversation{PeerID: peer}
			byPeer[peer] = conv
		}
		conv.MessageCount++
		if m.Timestamp.After(conv.LastMessageAt) {
			conv.LastMessageAt = m.Timestamp
		}
	}

	convs := make([]domain.Conversation, 0, len(byPeer))
	for _, conv := range byPeer {
		peer, err := s.userRepo.GetByID(ctx, conv.PeerID)
		if err != nil {
			return nil, err
		}
		if peer != nil {
			conv.PeerDisplayName = peer.DisplayName
		}
		convs = append(convs, *conv)
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].LastMessageAt.Equal(convs[j].LastMessageAt) {
			return convs[i].PeerID < convs[j].PeerID
		}
		return convs[i].LastMessageAt.After(convs[j].LastMessageAt)
	})
	return convs, nil
}
