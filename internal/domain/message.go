package domain

import "time"

// StoryChannelID is the receiver id stories are persisted under.
const StoryChannelID = "stories"

type RecipientKind int

const (
	RecipientDirect RecipientKind = iota
	RecipientStory
)

// Recipient says where a message goes: to one user, or onto the author's story channel.
type Recipient struct {
	Kind   RecipientKind
	UserID string
}

func Direct(userID string) Recipient {
	return Recipient{Kind: RecipientDirect, UserID: userID}
}

func Story() Recipient {
	return Recipient{Kind: RecipientStory}
}

func (r Recipient) IsStory() bool {
	return r.Kind == RecipientStory
}

// ReceiverID is the value stored in Message.ReceiverID for this recipient.
func (r Recipient) ReceiverID() string {
	if r.IsStory() {
		return StoryChannelID
	}
	return r.UserID
}

type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	ImageURL   string    `json:"image_url,omitempty"`
	VideoURL   string    `json:"video_url,omitempty"`
	FileURL    string    `json:"file_url,omitempty"`
	FileType   string    `json:"file_type,omitempty"`
	AudioURL   string    `json:"audio_url,omitempty"`
	IsStory    bool      `json:"is_story"`
}

func (m Message) Recipient() Recipient {
	if m.IsStory || m.ReceiverID == StoryChannelID {
		return Recipient{Kind: RecipientStory, UserID: m.SenderID}
	}
	return Direct(m.ReceiverID)
}

// Involves reports whether the message was exchanged between a and b, in either direction.
func (m Message) Involves(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Conversation is a peer the user has exchanged direct messages with.
type Conversation struct {
	PeerID          string    `json:"peer_id"`
	PeerDisplayName string    `json:"peer_display_name"`
	LastMessageAt   time.Time `json:"last_message_at"`
	MessageCount    int       `json:"message_count"`
}
