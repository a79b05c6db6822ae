package domain

import (
	"time"

	"github.com/google/uuid"
)

// WaitlistStatus represents the state of a waitlist entry
type WaitlistStatus string

const (
	WaitlistStatusActive    WaitlistStatus = "ACTIVE"
	WaitlistStatusConverted WaitlistStatus = "CONVERTED"
)

// WaitlistEntry is a user's place in line for a full class or event.
// Position is assigned monotonically at creation (max+1). Promotion picks by
// priority descending, then position ascending, and an entry is never
// promoted twice once CONVERTED.
type WaitlistEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	ClassID   string         `json:"class_id,omitempty"`
	EventID   string         `json:"event_id,omitempty"`
	Position  int            `json:"position"`
	Priority  int            `json:"priority"`
	Status    WaitlistStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewWaitlistEntry creates an ACTIVE entry; position is assigned by the store.
func NewWaitlistEntry(userID, classID, eventID string, priority int) (*WaitlistEntry, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if (classID == "") == (eventID == "") {
		return nil, ErrExactlyOneItem
	}

	now := time.Now().UTC()
	return &WaitlistEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		ClassID:   classID,
		EventID:   eventID,
		Priority:  priority,
		Status:    WaitlistStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ItemID returns the class or event id the entry waits on.
func (w *WaitlistEntry) ItemID() string {
	if w.ClassID != "" {
		return w.ClassID
	}
	return w.EventID
}

// ItemType returns the booking type the entry waits on.
func (w *WaitlistEntry) ItemType() BookingType {
	if w.ClassID != "" {
		return BookingTypeClass
	}
	return BookingTypeEvent
}
