package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Client-to-server frame type tags.
const (
	TypeRegister         = "register"
	TypeMessage          = "message"
	TypeEncryptedMessage = "encrypted_message"
	TypeImageMetadata    = "image_metadata"
	TypeTyping           = "typing"
	TypeRead             = "read"
	TypeKeyExchange      = "key_exchange"
)

// Server-to-client frame type tags.
const (
	TypeSystem       = "system"
	TypeHistory      = "history"
	TypeUserList     = "userList"
	TypeImage        = "image"
	TypeNotification = "notification"
	TypeError        = "error"
	TypeInfo         = "info"
	TypeUploadReady  = "upload_ready"
)

// ErrProtocol is returned for frames that cannot be parsed into a known
// variant: invalid JSON, a missing type tag, or an unrecognized tag.
// All malformed input collapses to this one error so the caller has a
// single protocol-violation branch.
var ErrProtocol = errors.New("malformed or unrecognized frame")

// ClientFrame is the closed set of structured frames a client may send.
// Raw binary websocket messages are not frames in this sense; they are
// only meaningful immediately after an ImageMetadata frame and are
// handled by the transport layer directly.
type ClientFrame interface {
	clientFrame()
}

// Register binds a username to the connection. The optional public key
// is an opaque blob cached for later key exchange.
type Register struct {
	Username  string
	PublicKey string
}

// DirectMessage is a plain or end-to-end-encrypted text message. The
// server never inspects Body; for encrypted messages it is ciphertext
// and passes through untouched.
type DirectMessage struct {
	From      string
	To        string
	Body      string
	Encrypted bool
}

// ImageMetadata stages a binary transfer: the next binary websocket
// message from the same connection carries the image bytes.
type ImageMetadata struct {
	To        string
	Filename  string
	Encrypted bool
}

// Typing is a fire-and-forget typing indicator.
type Typing struct {
	To       string
	IsTyping bool
}

// Read is a fire-and-forget read receipt.
type Read struct {
	To        string
	Timestamp string
}

// KeyExchange relays the sender's public key blob to a peer.
type KeyExchange struct {
	To        string
	PublicKey string
}

func (*Register) clientFrame()      {}
func (*DirectMessage) clientFrame() {}
func (*ImageMetadata) clientFrame() {}
func (*Typing) clientFrame()        {}
func (*Read) clientFrame()          {}
func (*KeyExchange) clientFrame()   {}

// envelope is the superset of fields any client frame may carry. Frames
// arrive as one flat JSON object distinguished by its "type" tag.
type envelope struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message"`
	Filename  string `json:"filename"`
	Encrypted bool   `json:"encrypted"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp string `json:"timestamp"`
	PublicKey string `json:"publicKey"`
}

// ParseClient parses one structured frame from a client. Unparseable
// input and unknown type tags both return ErrProtocol; validation of
// field contents is left to the router.
func ParseClient(data []byte) (ClientFrame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	switch env.Type {
	case TypeRegister:
		return &Register{Username: env.Username, PublicKey: env.PublicKey}, nil
	case TypeMessage, TypeEncryptedMessage:
		return &DirectMessage{
			From:      env.From,
			To:        env.To,
			Body:      env.Message,
			Encrypted: env.Type == TypeEncryptedMessage,
		}, nil
	case TypeImageMetadata:
		return &ImageMetadata{To: env.To, Filename: env.Filename, Encrypted: env.Encrypted}, nil
	case TypeTyping:
		return &Typing{To: env.To, IsTyping: env.IsTyping}, nil
	case TypeRead:
		return &Read{To: env.To, Timestamp: env.Timestamp}, nil
	case TypeKeyExchange:
		return &KeyExchange{To: env.To, PublicKey: env.PublicKey}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type tag", ErrProtocol)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrProtocol, env.Type)
	}
}

// FrameType returns the wire tag for a parsed client frame, used for
// metrics labels.
func FrameType(f ClientFrame) string {
	switch f := f.(type) {
	case *Register:
		return TypeRegister
	case *DirectMessage:
		if f.Encrypted {
			return TypeEncryptedMessage
		}
		return TypeMessage
	case *ImageMetadata:
		return TypeImageMetadata
	case *Typing:
		return TypeTyping
	case *Read:
		return TypeRead
	case *KeyExchange:
		return TypeKeyExchange
	default:
		return "unknown"
	}
}

// NotBlank reports whether a field has content beyond whitespace.
// Usernames, recipients, and message bodies are only rejected when
// blank; usernames are otherwise unrestricted and case-sensitive.
func NotBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}
