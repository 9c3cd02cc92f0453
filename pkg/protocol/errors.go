package protocol

// Canonical wire error strings. Clients match on these texts, so they
// are part of the protocol contract and must not be reworded.
const (
	ErrTextUsernameEmpty      = "Username cannot be empty"
	ErrTextUsernameTaken      = "Username already taken"
	ErrTextAlreadyRegistered  = "Already registered"
	ErrTextNotRegistered      = "You must register first"
	ErrTextUnauthorizedSender = "Unauthorized message sender"
	ErrTextRecipientEmpty     = "Recipient cannot be empty"
	ErrTextMessageEmpty       = "Message cannot be empty"
	ErrTextUserNotFound       = "User not found"
	ErrTextInvalidRecipient   = "Invalid recipient"
	ErrTextTargetOffline      = "Target user is offline"
	ErrTextStoreImageFailed   = "Failed to store image"
	ErrTextSendFailed         = "Failed to send message"
	ErrTextKeyExchangeFailed  = "Failed to exchange keys"
	ErrTextInvalidFormat      = "Invalid message format"
)

// Error taxonomy labels, used for metrics and logging only; the wire
// carries the texts above.
const (
	ErrClassValidation   = "validation"
	ErrClassAuth         = "auth"
	ErrClassNotFound     = "not_found"
	ErrClassAvailability = "availability"
	ErrClassProtocol     = "protocol"
	ErrClassStorage      = "storage"
)
