package domain

import "time"

// EventStatusPublished is the only event state open for booking.
const EventStatusPublished = "PUBLISHED"

// Class represents a bookable dance class with its capacity counter.
// CurrentStudents is maintained by the engine: it equals the number of
// CONFIRMED bookings for the class at any consistent point.
type Class struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Price           float64   `json:"price"`
	MaxStudents     int       `json:"max_students"`
	CurrentStudents int       `json:"current_students"`
	IsActive        bool      `json:"is_active"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	InstructorName  string    `json:"instructor_name,omitempty"`
	Venue           string    `json:"venue,omitempty"`
}

// HasCapacity reports whether the class can take one more confirmed student.
func (c *Class) HasCapacity() bool {
	return c.CurrentStudents < c.MaxStudents
}

// Event represents a bookable event with its capacity counter.
type Event struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Price            float64   `json:"price"`
	MaxAttendees     int       `json:"max_attendees"`
	CurrentAttendees int       `json:"current_attendees"`
	Status           string    `json:"status"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	OrganizerName    string    `json:"organizer_name,omitempty"`
	Venue            string    `json:"venue,omitempty"`
}

// HasCapacity reports whether the event can take one more confirmed attendee.
func (e *Event) HasCapacity() bool {
	return e.CurrentAttendees < e.MaxAttendees
}

// BookableItem is the provider-agnostic view of a class or event the
// booking engine needs: pricing, schedule and availability.
type BookableItem struct {
	Type      BookingType
	ID        string
	Title     string
	Price     float64
	StartTime time.Time
	EndTime   time.Time
	Available bool
	HostName  string
	Venue     string
}

// Item converts a class into its bookable view.
func (c *Class) Item() *BookableItem {
	return &BookableItem{
		Type:      BookingTypeClass,
		ID:        c.ID,
		Title:     c.Title,
		Price:     c.Price,
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
		Available: c.IsActive,
		HostName:  c.InstructorName,
		Venue:     c.Venue,
	}
}

// Item converts an event into its bookable view.
func (e *Event) Item() *BookableItem {
	return &BookableItem{
		Type:      BookingTypeEvent,
		ID:        e.ID,
		Title:     e.Title,
		Price:     e.Price,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Available: e.Status == EventStatusPublished,
		HostName:  e.OrganizerName,
		Venue:     e.Venue,
	}
}

// User is the slice of the user record the engine reads; it never mutates users.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}
