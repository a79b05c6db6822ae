package service

import (
	"testing"
	"time"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/repository"
)

// testStore seeds an in-memory store with one user, one class and one event,
// all bookable, starting comfortably in the future.
func testStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddUser(&domain.User{ID: "user-1", Email: "dancer@example.com", FullName: "Alex Rivera"})
	store.AddClass(&domain.Class{
		ID:          "class-1",
		Title:       "Salsa Beginners",
		Price:       25,
		MaxStudents: 10,
		IsActive:    true,
		StartTime:   time.Now().Add(72 * time.Hour),
		EndTime:     time.Now().Add(73 * time.Hour),
	})
	store.AddEvent(&domain.Event{
		ID:           "event-1",
		Title:        "Summer Social",
		Price:        40,
		MaxAttendees: 50,
		Status:       domain.EventStatusPublished,
		StartTime:    time.Now().Add(96 * time.Hour),
		EndTime:      time.Now().Add(100 * time.Hour),
	})
	return store
}
