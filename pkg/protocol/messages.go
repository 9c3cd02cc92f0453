package protocol

import "encoding/json"

// Server-to-client frames. Each struct carries its own "type" tag so a
// frame marshals directly to the wire shape; the constructors below set
// the tag and are the only way handlers build frames.

// SystemMessage is a broadcast or per-connection announcement. The
// welcome variant includes the server's public identity so clients can
// encrypt handshake material to the server.
type SystemMessage struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	ServerPublicKey string `json:"serverPublicKey,omitempty"`
}

// HistoryMessage replays one conversation's retained backlog. Sent once
// per conversation at registration time.
type HistoryMessage struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
}

// Message is one stored conversation entry on the wire.
type Message struct {
	From        string `json:"from"`
	Body        string `json:"message"`
	MessageType string `json:"messageType"`
	Timestamp   string `json:"timestamp"`
	ImageData   string `json:"imageData,omitempty"`
}

// UserStatus describes one user's presence in a UserListMessage.
type UserStatus struct {
	Status    string  `json:"status"`
	LastSeen  *string `json:"lastSeen"`
	PublicKey *string `json:"publicKey"`
}

// UserListMessage is the full presence snapshot broadcast on every
// join, leave, and eviction.
type UserListMessage struct {
	Type       string                `json:"type"`
	Users      []string              `json:"users"`
	UserStatus map[string]UserStatus `json:"userStatus"`
}

// DirectMessageOut delivers a text or encrypted message to its
// recipient. Type distinguishes the two kinds, same as inbound.
type DirectMessageOut struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ImageOut delivers a relayed image. Message carries the filename,
// ImageData the base64-encoded bytes.
type ImageOut struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Message   string `json:"message"`
	ImageData string `json:"imageData"`
	Timestamp string `json:"timestamp"`
	Encrypted bool   `json:"encrypted"`
}

// TypingOut forwards a typing indicator.
type TypingOut struct {
	Type     string `json:"type"`
	From     string `json:"from"`
	IsTyping bool   `json:"isTyping"`
}

// ReadOut forwards a read receipt.
type ReadOut struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
}

// KeyExchangeOut forwards a peer's public key blob.
type KeyExchangeOut struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	PublicKey string `json:"publicKey"`
}

// NotificationMessage is a targeted system notice to one user.
type NotificationMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorMessage reports a failed operation to the caller. Never fatal to
// the connection.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// InfoMessage is a non-error advisory reply to the caller.
type InfoMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// UploadReadyMessage acknowledges staged image metadata; the client may
// now send the binary frame.
type UploadReadyMessage struct {
	Type string `json:"type"`
}

func NewSystem(message string) *SystemMessage {
	return &SystemMessage{Type: TypeSystem, Message: message}
}

func NewWelcome(message, serverPublicKey string) *SystemMessage {
	return &SystemMessage{Type: TypeSystem, Message: message, ServerPublicKey: serverPublicKey}
}

func NewHistory(conversationID string, messages []Message) *HistoryMessage {
	return &HistoryMessage{Type: TypeHistory, ConversationID: conversationID, Messages: messages}
}

func NewUserList(users []string, status map[string]UserStatus) *UserListMessage {
	return &UserListMessage{Type: TypeUserList, Users: users, UserStatus: status}
}

func NewDirectMessage(from, body, timestamp string, encrypted bool) *DirectMessageOut {
	typ := TypeMessage
	if encrypted {
		typ = TypeEncryptedMessage
	}
	return &DirectMessageOut{Type: typ, From: from, Message: body, Timestamp: timestamp}
}

func NewImage(from, filename, imageData, timestamp string, encrypted bool) *ImageOut {
	return &ImageOut{
		Type:      TypeImage,
		From:      from,
		Message:   filename,
		ImageData: imageData,
		Timestamp: timestamp,
		Encrypted: encrypted,
	}
}

func NewTyping(from string, isTyping bool) *TypingOut {
	return &TypingOut{Type: TypeTyping, From: from, IsTyping: isTyping}
}

func NewRead(from, timestamp string) *ReadOut {
	return &ReadOut{Type: TypeRead, From: from, Timestamp: timestamp}
}

func NewKeyExchange(from, publicKey string) *KeyExchangeOut {
	return &KeyExchangeOut{Type: TypeKeyExchange, From: from, PublicKey: publicKey}
}

func NewNotification(message string) *NotificationMessage {
	return &NotificationMessage{Type: TypeNotification, Message: message}
}

func NewError(text string) *ErrorMessage {
	return &ErrorMessage{Type: TypeError, Error: text}
}

func NewInfo(message string) *InfoMessage {
	return &InfoMessage{Type: TypeInfo, Message: message}
}

func NewUploadReady() *UploadReadyMessage {
	return &UploadReadyMessage{Type: TypeUploadReady}
}

// Encode marshals a server frame for the wire.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
