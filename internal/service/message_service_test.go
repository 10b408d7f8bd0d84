package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/hadra/internal/attachment"
	"github.com/vedran77/hadra/internal/domain"
)

func file(name, mediaType, content string) *attachment.File {
	return &attachment.File{
		Name:    name,
		Type:    mediaType,
		Size:    int64(len(content)),
		Content: strings.NewReader(content),
	}
}

func contents(messages []domain.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Content
	}
	return out
}

func TestConversationBetweenTwoUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, m := range []struct{ from, to, content string }{
		{"1", "2", "hi bob"},
		{"2", "1", "hey alice"},
		{"1", "2", "lunch?"},
	} {
		require.NoError(t, f.msgRepo.Create(ctx, &domain.Message{
			SenderID: m.from, ReceiverID: m.to, Content: m.content, Timestamp: f.clock.Now(),
		}))
	}

	f.login(t, "user@example.com", "password123")
	messages, err := f.messages.GetMessages(ctx, "2", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi bob", "hey alice", "lunch?"}, contents(messages))

	f.login(t, "demo@example.com", "demo123")
	messages, err = f.messages.GetMessages(ctx, "3", false)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.NotNil(t, messages)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, "user@example.com", "password123")

	msg, err := f.messages.SendMessage(ctx, domain.Direct("2"), SendMessageInput{Content: "gm"})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "1", msg.SenderID)
	assert.Equal(t, "2", msg.ReceiverID)
	assert.False(t, msg.IsStory)
	assert.True(t, strings.HasPrefix(msg.ID, "msg_"))
	assert.False(t, msg.Timestamp.IsZero())

	f.login(t, "demo@example.com", "demo123")
	messages, err := f.messages.GetMessages(ctx, "1", false)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, msg.ID, messages[0].ID)
}

func TestSendMessageWhileSignedOut(t *testing.T) {
	f := newFixture(t)

	msg, err := f.messages.SendMessage(context.Background(), domain.Direct("2"), SendMessageInput{Content: "hello?"})
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Zero(t, f.messageCount(t))
}

func TestSendMessageRejections(t *testing.T) {
	oversized := &attachment.File{Name: "huge.png", Type: "image/png", Size: 6 * 1024 * 1024, Content: strings.NewReader("png")}

	tests := []struct {
		name  string
		to    domain.Recipient
		input SendMessageInput
		want  error
	}{
		{name: "image over limit", to: domain.Direct("2"), input: SendMessageInput{Content: "look", Media: oversized}, want: attachment.ErrInvalidAttachment},
		{name: "unsupported type", to: domain.Direct("2"), input: SendMessageInput{Media: file("a.zip", "application/zip", "PK")}, want: attachment.ErrUnsupportedType},
		{name: "bad audio blob", to: domain.Direct("2"), input: SendMessageInput{Audio: file("a.flac", "audio/flac", "fLaC")}, want: attachment.ErrInvalidAttachment},
		{name: "two audio attachments", to: domain.Direct("2"), input: SendMessageInput{Media: file("a.mp3", "audio/mpeg", "ID3"), Audio: file("b.wav", "audio/wav", "RIFF")}, want: attachment.ErrInvalidAttachment},
		{name: "empty", to: domain.Direct("2"), input: SendMessageInput{Content: "   "}, want: ErrEmptyMessage},
		{name: "no recipient", to: domain.Direct(""), input: SendMessageInput{Content: "hi"}, want: ErrMissingRecipient},
		{name: "direct to story channel", to: domain.Direct(domain.StoryChannelID), input: SendMessageInput{Content: "sneaky"}, want: ErrReservedReceiver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.login(t, "user@example.com", "password123")

			msg, err := f.messages.SendMessage(context.Background(), tt.to, tt.input)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, msg)
			assert.Zero(t, f.messageCount(t), "nothing is appended")
		})
	}
}

func TestSendMessageEncodeFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.login(t, "user@example.com", "password123")

	broken := &attachment.File{Name: "a.png", Type: "image/png", Size: 10, Content: iotest.ErrReader(errors.New("disk gone"))}
	_, err := f.messages.SendMessage(context.Background(), domain.Direct("2"), SendMessageInput{
		Media: broken,
		Audio: file("note.ogg", "audio/ogg", "OggS"),
	})
	assert.ErrorIs(t, err, attachment.ErrEncodeFailed)
	assert.Zero(t, f.messageCount(t))
}

func TestSendMessageAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, "user@example.com", "password123")

	msg, err := f.messages.SendMessage(ctx, domain.Direct("2"), SendMessageInput{
		Content: "pic and a voice note",
		Media:   file("cat.png", "image/png", "png"),
		Audio:   file("note.ogg", "audio/ogg", "OggS"),
	})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,cG5n", msg.ImageURL)
	assert.Equal(t, "data:audio/ogg;base64,T2dnUw==", msg.AudioURL)
	assert.Empty(t, msg.VideoURL)

	msg, err = f.messages.SendMessage(ctx, domain.Direct("2"), SendMessageInput{Media: file("doc.pdf", "application/pdf", "%PDF")})
	require.NoError(t, err)
	assert.Equal(t, "pdf", msg.FileType)
	assert.True(t, strings.HasPrefix(msg.FileURL, "data:application/pdf;base64,"))

	msg, err = f.messages.SendMessage(ctx, domain.Direct("2"), SendMessageInput{Media: file("clip.mp4", "video/mp4", "mp4")})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.VideoURL)
	assert.Empty(t, msg.FileType)

	assert.Equal(t, 3, f.messageCount(t))
}

func TestStories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, "user@example.com", "password123")

	_, err := f.messages.SendMessage(ctx, domain.Direct("2"), SendMessageInput{Content: "direct"})
	require.NoError(t, err)
	story, err := f.messages.CreateStory(ctx, "my day", file("sun.jpg", "image/jpeg", "jpg"))
	require.NoError(t, err)
	assert.True(t, story.IsStory)
	assert.Equal(t, domain.StoryChannelID, story.ReceiverID)
	assert.NotEmpty(t, story.ImageURL)

	stories, err := f.messages.GetStories(ctx)
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, story.ID, stories[0].ID)

	direct, err := f.messages.GetMessages(ctx, "2", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"direct"}, contents(direct))

	onChannel, err := f.messages.GetMessages(ctx, domain.StoryChannelID, false)
	require.NoError(t, err)
	assert.Empty(t, onChannel)
	onChannel, err = f.messages.GetMessages(ctx, domain.StoryChannelID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"my day"}, contents(onChannel))

	f.login(t, "demo@example.com", "demo123")
	own, err := f.messages.GetStories(ctx)
	require.NoError(t, err)
	assert.Empty(t, own)

	friends, err := f.messages.GetFriendStories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"my day"}, contents(friends))
}

func TestFriendStoriesOnlyFromFriends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, RegisterInput{Email: "eve@example.com", Password: "Eve12345", DisplayName: "Eve"})
	require.NoError(t, err)
	_, err = f.messages.CreateStory(ctx, "eve's story", nil)
	require.NoError(t, err)

	f.login(t, "demo@example.com", "demo123")
	stories, err := f.messages.GetFriendStories(ctx)
	require.NoError(t, err)
	assert.Empty(t, stories)
}

func TestListConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.auth.Register(ctx, RegisterInput{Email: "carol@example.com", Password: "Carol1234", DisplayName: "Carol"})
	require.NoError(t, err)
	carol := reg.User.ID
	_, err = f.messages.SendMessage(ctx, domain.Direct("1"), SendMessageInput{Content: "hi pixel"})
	require.NoError(t, err)

	f.login(t, "user@example.com", "password123")
	for _, content := range []string{"one", "two"} {
		_, err = f.messages.SendMessage(ctx, domain.Direct("2"), SendMessageInput{Content: content})
		require.NoError(t, err)
	}
	_, err = f.messages.CreateStory(ctx, "not a conversation", nil)
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, domain.Direct(carol), SendMessageInput{Content: "hi carol"})
	require.NoError(t, err)

	convs, err := f.messages.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, carol, convs[0].PeerID)
	assert.Equal(t, "Carol", convs[0].PeerDisplayName)
	assert.Equal(t, 2, convs[0].MessageCount)
	assert.Equal(t, "2", convs[1].PeerID)
	assert.Equal(t, "CryptoFan", convs[1].PeerDisplayName)
	assert.Equal(t, 2, convs[1].MessageCount)
}

func TestReadsWhileSignedOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	messages, err := f.messages.GetMessages(ctx, "2", true)
	require.NoError(t, err)
	assert.Empty(t, messages)

	stories, err := f.messages.GetFriendStories(ctx)
	require.NoError(t, err)
	assert.Empty(t, stories)

	convs, err := f.messages.ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)
}
