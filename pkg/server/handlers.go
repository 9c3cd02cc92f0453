package server

import (
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/ankan-coder/chat-app/pkg/protocol"
	"github.com/ankan-coder/chat-app/pkg/store"
)

// wireTimeLayout matches the ISO-8601 timestamps the frontend expects.
const wireTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func wireTime(t time.Time) string {
	return t.UTC().Format(wireTimeLayout)
}

// handleFrame parses one structured frame and dispatches it. Handler
// failures are replied to the caller and never tear down the
// connection; only transport errors do that.
func (s *Server) handleFrame(sess *Session, data []byte) {
	frame, err := protocol.ParseClient(data)
	if err != nil {
		debugLog.Printf("Session %d: %v", sess.ID, err)
		s.metrics.RecordRouterError(protocol.ErrClassProtocol)
		s.sendFrame(sess, protocol.NewError(protocol.ErrTextInvalidFormat), protocol.TypeError)
		return
	}

	s.metrics.RecordFrameReceived(protocol.FrameType(frame))

	switch f := frame.(type) {
	case *protocol.Register:
		err = s.handleRegister(sess, f)
	case *protocol.DirectMessage:
		err = s.handleDirectMessage(sess, f)
	case *protocol.ImageMetadata:
		err = s.handleImageMetadata(sess, f)
	case *protocol.Typing:
		err = s.handleTyping(sess, f)
	case *protocol.Read:
		err = s.handleRead(sess, f)
	case *protocol.KeyExchange:
		err = s.handleKeyExchange(sess, f)
	}

	if err != nil {
		debugLog.Printf("Session %d: handler error: %v", sess.ID, err)
	}
}

// handleRegister binds a username to the connection and replays state:
// welcome notice, per-conversation history, presence list, and a join
// announcement.
func (s *Server) handleRegister(sess *Session, f *protocol.Register) error {
	if !protocol.NotBlank(f.Username) {
		s.metrics.RecordRouterError(protocol.ErrClassValidation)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextUsernameEmpty), protocol.TypeError)
	}

	// The supplied key is cached before any further checks, so even a
	// rejected re-registration refreshes it.
	s.users.SetPublicKey(f.Username, f.PublicKey)

	if bound := sess.Username(); bound != "" && bound != f.Username {
		s.metrics.RecordRouterError(protocol.ErrClassAuth)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextAlreadyRegistered), protocol.TypeError)
	}

	if existing, ok := s.registry.Lookup(f.Username); ok && existing != sess && s.users.IsOnline(f.Username) {
		s.metrics.RecordRouterError(protocol.ErrClassAuth)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextUsernameTaken), protocol.TypeError)
	}

	// Bind; a lingering stale connection for this name (one whose close
	// was never observed) is terminated so the name maps to one session.
	if stale := s.registry.Bind(sess, f.Username); stale != nil {
		debugLog.Printf("Session %d: terminating stale connection %d for %q", sess.ID, stale.ID, f.Username)
		s.registry.Unbind(stale)
		stale.Conn.Close()
	}

	s.users.SetOnline(f.Username)
	log.Printf("%s registered.", f.Username)

	welcome := protocol.NewWelcome(
		fmt.Sprintf("Welcome %s! You are now connected.", f.Username),
		s.identity.PublicKeyPEM,
	)
	if err := s.sendFrame(sess, welcome, protocol.TypeSystem); err != nil {
		return err
	}

	// One history frame per conversation the user participates in.
	for _, conv := range s.convs.HistoryFor(f.Username) {
		history := protocol.NewHistory(conv.ID, toWireMessages(conv.Messages))
		if err := s.sendFrame(sess, history, protocol.TypeHistory); err != nil {
			return err
		}
	}

	s.broadcastUserList()
	s.broadcastFrame(protocol.NewSystem(fmt.Sprintf("%s has joined the chat.", f.Username)), protocol.TypeSystem)

	return nil
}

// handleDirectMessage validates, persists, and delivers a plain or
// encrypted text message. History is the only durable record: offline
// recipients get nothing queued, the sender gets an info reply.
func (s *Server) handleDirectMessage(sess *Session, f *protocol.DirectMessage) error {
	sender := sess.Username()
	if sender == "" {
		s.metrics.RecordRouterError(protocol.ErrClassAuth)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextNotRegistered), protocol.TypeError)
	}
	if f.From != sender {
		s.metrics.RecordRouterError(protocol.ErrClassAuth)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextUnauthorizedSender), protocol.TypeError)
	}
	if !protocol.NotBlank(f.To) {
		s.metrics.RecordRouterError(protocol.ErrClassValidation)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextRecipientEmpty), protocol.TypeError)
	}
	if !protocol.NotBlank(f.Body) {
		s.metrics.RecordRouterError(protocol.ErrClassValidation)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextMessageEmpty), protocol.TypeError)
	}

	kind := store.KindText
	if f.Encrypted {
		kind = store.KindEncrypted
	}

	// Ciphertext is opaque; it is stored and forwarded untouched.
	if _, err := s.convs.Append(sender, f.To, store.Message{Body: f.Body, Kind: kind}); err != nil {
		errorLog.Printf("Session %d: history append failed: %v", sess.ID, err)
		s.metrics.RecordRouterError(protocol.ErrClassStorage)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextSendFailed), protocol.TypeError)
	}

	switch {
	case s.users.IsOnline(f.To):
		rcpt, ok := s.registry.Lookup(f.To)
		if !ok {
			// Marked online but no live connection; history already has
			// the message, treat as offline.
			return s.sendFrame(sess, protocol.NewInfo(fmt.Sprintf("Message saved. %s is currently offline.", f.To)), protocol.TypeInfo)
		}
		out := protocol.NewDirectMessage(sender, f.Body, wireTime(time.Now()), f.Encrypted)
		if err := rcpt.Conn.WriteFrame(out); err != nil {
			errorLog.Printf("Session %d: deliver to %s failed: %v", sess.ID, f.To, err)
			s.metrics.RecordRouterError(protocol.ErrClassAvailability)
			return s.sendFrame(sess, protocol.NewError(protocol.ErrTextSendFailed), protocol.TypeError)
		}
		s.metrics.RecordFrameSent(protocol.FrameType(f))
		return nil

	case s.users.Known(f.To):
		return s.sendFrame(sess, protocol.NewInfo(fmt.Sprintf("Message saved. %s is currently offline.", f.To)), protocol.TypeInfo)

	default:
		s.metrics.RecordRouterError(protocol.ErrClassNotFound)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextUserNotFound), protocol.TypeError)
	}
}

// handleImageMetadata stages the first phase of a binary transfer on
// the connection's scratch slot and tells the client to send bytes.
func (s *Server) handleImageMetadata(sess *Session, f *protocol.ImageMetadata) error {
	if sess.Username() == "" {
		s.metrics.RecordRouterError(protocol.ErrClassAuth)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextNotRegistered), protocol.TypeError)
	}
	if !protocol.NotBlank(f.To) || !s.users.Known(f.To) {
		s.metrics.RecordRouterError(protocol.ErrClassNotFound)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextInvalidRecipient), protocol.TypeError)
	}

	sess.StageUpload(PendingUpload{To: f.To, Filename: f.Filename, Encrypted: f.Encrypted})
	return s.sendFrame(sess, protocol.NewUploadReady(), protocol.TypeUploadReady)
}

// handleBinary is the second phase of a transfer: the raw image bytes.
// With no staged metadata the frame is dropped and logged; a structured
// error reply is not possible because the frame carries no addressing.
// The scratch slot is cleared unconditionally, so a second binary frame
// without fresh metadata is also dropped.
func (s *Server) handleBinary(sess *Session, data []byte) {
	sender := sess.Username()
	if sender == "" {
		debugLog.Printf("Session %d: binary frame from unregistered connection dropped", sess.ID)
		return
	}

	meta, ok := sess.TakeUpload()
	if !ok {
		errorLog.Printf("Session %d: received binary message without metadata", sess.ID)
		s.metrics.RecordOrphanBinary()
		s.metrics.RecordRouterError(protocol.ErrClassProtocol)
		return
	}

	filename := meta.Filename
	if filename == "" {
		filename = "Image"
	}
	imageData := base64.StdEncoding.EncodeToString(data)

	stored, err := s.convs.Append(sender, meta.To, store.Message{
		Body:      filename,
		Kind:      store.KindImage,
		ImageData: imageData,
	})
	if err != nil {
		errorLog.Printf("Session %d: image append failed: %v", sess.ID, err)
		s.metrics.RecordRouterError(protocol.ErrClassStorage)
		s.sendFrame(sess, protocol.NewError(protocol.ErrTextStoreImageFailed), protocol.TypeError)
		return
	}

	if s.users.IsOnline(meta.To) {
		if rcpt, ok := s.registry.Lookup(meta.To); ok {
			out := protocol.NewImage(sender, filename, imageData, wireTime(stored.Timestamp), meta.Encrypted)
			if err := rcpt.Conn.WriteFrame(out); err != nil {
				errorLog.Printf("Session %d: image deliver to %s failed: %v", sess.ID, meta.To, err)
			} else {
				s.metrics.RecordFrameSent(protocol.TypeImage)
			}
		}
	}

	s.metrics.RecordImageRelayed()
}

// handleTyping forwards a typing indicator if the recipient is online.
// Fire-and-forget: no persistence, no error replies.
func (s *Server) handleTyping(sess *Session, f *protocol.Typing) error {
	sender := sess.Username()
	if sender == "" {
		return nil
	}
	if !s.users.IsOnline(f.To) {
		return nil
	}
	if rcpt, ok := s.registry.Lookup(f.To); ok {
		if err := rcpt.Conn.WriteFrame(protocol.NewTyping(sender, f.IsTyping)); err == nil {
			s.metrics.RecordFrameSent(protocol.TypeTyping)
		}
	}
	return nil
}

// handleRead forwards a read receipt if the recipient is online.
// Fire-and-forget, same contract as typing.
func (s *Server) handleRead(sess *Session, f *protocol.Read) error {
	sender := sess.Username()
	if sender == "" {
		return nil
	}
	if !s.users.IsOnline(f.To) {
		return nil
	}
	if rcpt, ok := s.registry.Lookup(f.To); ok {
		if err := rcpt.Conn.WriteFrame(protocol.NewRead(sender, f.Timestamp)); err == nil {
			s.metrics.RecordFrameSent(protocol.TypeRead)
		}
	}
	return nil
}

// handleKeyExchange caches the sender's key blob and forwards it to the
// target. An offline-but-known target is a liveness failure, distinct
// from an unknown one; either way the blob is never inspected.
func (s *Server) handleKeyExchange(sess *Session, f *protocol.KeyExchange) error {
	sender := sess.Username()
	if sender == "" {
		s.metrics.RecordRouterError(protocol.ErrClassAuth)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextNotRegistered), protocol.TypeError)
	}
	if !protocol.NotBlank(f.To) || !s.users.Known(f.To) {
		s.metrics.RecordRouterError(protocol.ErrClassNotFound)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextUserNotFound), protocol.TypeError)
	}

	// Idempotent overwrite, regardless of the target's presence.
	s.users.SetPublicKey(sender, f.PublicKey)

	if !s.users.IsOnline(f.To) {
		s.metrics.RecordRouterError(protocol.ErrClassAvailability)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextTargetOffline), protocol.TypeError)
	}

	rcpt, ok := s.registry.Lookup(f.To)
	if !ok {
		s.metrics.RecordRouterError(protocol.ErrClassAvailability)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextTargetOffline), protocol.TypeError)
	}

	if err := rcpt.Conn.WriteFrame(protocol.NewKeyExchange(sender, f.PublicKey)); err != nil {
		errorLog.Printf("Session %d: key exchange to %s failed: %v", sess.ID, f.To, err)
		return s.sendFrame(sess, protocol.NewError(protocol.ErrTextKeyExchangeFailed), protocol.TypeError)
	}
	s.metrics.RecordFrameSent(protocol.TypeKeyExchange)
	return nil
}

// Notify sends a targeted system notification to one user, if online.
func (s *Server) Notify(username, message string) {
	if !s.users.IsOnline(username) {
		return
	}
	if sess, ok := s.registry.Lookup(username); ok {
		if err := sess.Conn.WriteFrame(protocol.NewNotification(message)); err == nil {
			s.metrics.RecordFrameSent(protocol.TypeNotification)
		}
	}
}

// sendFrame sends one structured frame to a session.
func (s *Server) sendFrame(sess *Session, v any, frameType string) error {
	if err := sess.Conn.WriteFrame(v); err != nil {
		errorLog.Printf("Session %d: write failed (%s): %v", sess.ID, frameType, err)
		return err
	}
	s.metrics.RecordFrameSent(frameType)
	return nil
}

// broadcastFrame sends one frame to every connected session, best
// effort. Write failures are left for each connection's own read loop
// to discover.
func (s *Server) broadcastFrame(v any, frameType string) {
	for _, sess := range s.registry.All() {
		if err := sess.Conn.WriteFrame(v); err != nil {
			debugLog.Printf("Session %d: broadcast write failed: %v", sess.ID, err)
			continue
		}
		s.metrics.RecordFrameSent(frameType)
	}
}

// broadcastUserList pushes the current presence snapshot to everyone.
func (s *Server) broadcastUserList() {
	online, presence := s.users.Snapshot()

	status := make(map[string]protocol.UserStatus, len(presence))
	for name, info := range presence {
		st := protocol.UserStatus{Status: info.Status}
		if !info.LastSeen.IsZero() {
			ts := wireTime(info.LastSeen)
			st.LastSeen = &ts
		}
		if info.PublicKey != "" {
			key := info.PublicKey
			st.PublicKey = &key
		}
		status[name] = st
	}
	if online == nil {
		online = []string{}
	}

	s.broadcastFrame(protocol.NewUserList(online, status), protocol.TypeUserList)
}

// toWireMessages converts stored history entries to their wire shape.
func toWireMessages(messages []store.Message) []protocol.Message {
	out := make([]protocol.Message, len(messages))
	for i, m := range messages {
		out[i] = protocol.Message{
			From:        m.Sender,
			Body:        m.Body,
			MessageType: m.Kind,
			Timestamp:   wireTime(m.Timestamp),
			ImageData:   m.ImageData,
		}
	}
	return out
}
