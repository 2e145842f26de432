package pkg

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrModelUnavailable     = errors.New("model unavailable")
	ErrMalformedModelReply  = errors.New("malformed model reply")
	ErrUnknownKind          = errors.New("unknown item kind")
	ErrItemNotFound         = errors.New("item not found")
	ErrItemIncomplete       = errors.New("item incomplete")
	ErrAmbiguousMatch       = errors.New("ambiguous item match")
	ErrPersistenceFailure   = errors.New("persistence failure")
	ErrDeletionNotConfirmed = errors.New("deletion not confirmed")
	ErrEmptyMessage         = errors.New("message cannot be empty")

	// ErrDocumentNotFound is returned by stores for a missing key
	ErrDocumentNotFound = errors.New("document not found")
)

// IsRetryable reports whether the caller may retry the whole operation
func IsRetryable(err error) bool {
	return errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrPersistenceFailure)
}
