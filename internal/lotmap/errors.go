package lotmap

import (
	"errors"
	"fmt"
)

// ErrMissingLotID is wrapped by the ConfigurationError raised for an empty lot id
var ErrMissingLotID = errors.New("lot id is required")

const (
	missingLotMessage = "No lot ID provided."
	feedFailedMessage = "Failed to load parking spots."
)

// ConfigurationError means the view was mounted without what it needs to
// subscribe. It is not retried.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("map configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UserMessage returns the text shown in place of the map
func (e *ConfigurationError) UserMessage() string { return missingLotMessage }

// FeedError means the live subscription failed. The view stays in the error
// state until it is mounted again.
type FeedError struct {
	LotID string
	Err   error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed subscription for lot %s failed: %v", e.LotID, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// UserMessage returns the text shown in place of the map
func (e *FeedError) UserMessage() string { return feedFailedMessage }

// UserMessage extracts the user-facing text from err, falling back to the
// generic feed failure message
func UserMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return feedFailedMessage
}
