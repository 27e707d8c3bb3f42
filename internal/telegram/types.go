package telegram

import (
	"time"
)

// Source represents a resolved channel or group being monitored.
type Source struct {
	ID         int64  // channel id
	AccessHash int64  // access hash for api calls
	Identifier string // identifier as configured (username or numeric id)
	Title      string // channel title
}

// Message represents a parsed telegram message.
type Message struct {
	ID       int       // message id (unique within channel)
	SourceID int64     // channel id
	Text     string    // message text content
	Date     time.Time // message creation timestamp, UTC
}
