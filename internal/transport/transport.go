// Package transport defines the boundary to the real-time messaging protocol
// client. The protocol implementation itself is an external collaborator; the
// session manager only depends on these interfaces and the event stream.
package transport

import (
	"context"
	"errors"
	"regexp"

	"github.com/marwld/minibot/internal/model"
)

// StatusFeed is the broadcast address carrying contacts' status posts.
const StatusFeed = "status@broadcast"

// PresenceRecording is the presence shown while "recording audio".
const PresenceRecording = "recording"

// UserAddress returns the network address for a normalized identity.
func UserAddress(identity string) string {
	return identity + "@s.whatsapp.net"
}

var inviteLinkRe = regexp.MustCompile(`chat\.whatsapp\.com/([a-zA-Z0-9]+)`)

// InviteCodeFromLink extracts the invite code from a group invite link.
func InviteCodeFromLink(link string) (string, error) {
	m := inviteLinkRe.FindStringSubmatch(link)
	if m == nil {
		return "", errors.New("invalid group invite link")
	}
	return m[1], nil
}

// AuthState carries credentials restored from durable storage into a new
// connection. Creds is nil when the identity pairs fresh.
type AuthState struct {
	Creds []byte
}

// Client is one live protocol connection bound to a single identity.
// Implementations must deliver events for a connection in emission order and
// close the Events channel after emitting Closed.
type Client interface {
	// Registered reports whether the connection holds valid prior credentials.
	Registered() bool
	// SelfAddress returns the connection's own user address.
	SelfAddress() string
	// RequestPairingCode asks the network for a one-time linking code.
	RequestPairingCode(ctx context.Context, identity string) (string, error)
	// SendText delivers a text message and returns the message ID.
	SendText(ctx context.Context, to, text string) (string, error)
	// SendReaction reacts to a message in a chat.
	SendReaction(ctx context.Context, chat, messageID, emoji string) error
	// MarkRead marks messages in a chat as read.
	MarkRead(ctx context.Context, chat string, ids []string) error
	// SendPresence publishes a presence update to a chat.
	SendPresence(ctx context.Context, chat, presence string) error
	// AcceptGroupInvite joins a group by invite code and returns the group ID.
	AcceptGroupInvite(ctx context.Context, code string) (string, error)
	// FollowChannel subscribes the connection to a broadcast channel.
	FollowChannel(ctx context.Context, channel string) error
	// ReactToChannelPost reacts to a channel post by server ID.
	ReactToChannelPost(ctx context.Context, channel, serverID, emoji string) error
	// FetchAbout fetches a third party's public status text.
	FetchAbout(ctx context.Context, target string) (model.About, error)
	// Events returns the connection's event stream.
	Events() <-chan Event
	// Close tears the connection down and releases local staging state.
	Close() error
}

// Dialer opens protocol connections.
type Dialer interface {
	// Dial initializes a client for the identity bound to the given auth state.
	Dial(ctx context.Context, identity string, auth AuthState) (Client, error)
}

// Event is a connection lifecycle or traffic notification.
type Event interface{ isEvent() }

// Opened signals the connection handshake completed.
type Opened struct{}

// Closed signals the connection ended. AuthRevoked marks the unrecoverable
// 401-equivalent; everything else is a transient close.
type Closed struct {
	Err         error
	AuthRevoked bool
}

// CredsRotated signals locally cached auth material changed and must be persisted.
type CredsRotated struct {
	Creds []byte
}

// Message is an inbound message, button selection, or channel post.
type Message struct {
	ID       string
	Chat     string // remote chat address
	Sender   string // author, used for status-feed posts
	Text     string
	ButtonID string // selected button identifier, empty for plain text
	ServerID string // channel-post server ID, empty otherwise
}

// MessagesDeleted signals message revocation in a chat.
type MessagesDeleted struct {
	Chat string
	IDs  []string
}

func (Opened) isEvent()          {}
func (Closed) isEvent()          {}
func (CredsRotated) isEvent()    {}
func (Message) isEvent()         {}
func (MessagesDeleted) isEvent() {}
