package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/insominiac/dancemvp-backend/internal/domain"
)

// MemoryStore backs the in-memory repository implementations. All of them
// share one store and one mutex so the paired booking-status / counter
// transitions stay atomic, same as the Postgres transactions.
// This is useful for testing and development.
type MemoryStore struct {
	mu sync.RWMutex

	bookings     map[string]*domain.Booking
	bySession    map[string]string   // providerSessionID -> bookingID
	byUser       map[string][]string // userID -> []bookingID
	transactions map[string]*domain.Transaction
	classes      map[string]*domain.Class
	events       map[string]*domain.Event
	users        map[string]*domain.User
	waitlist     map[string]*domain.WaitlistEntry
	refunds      map[string][]*domain.Refund // bookingID -> refunds
	auditLogs    []*domain.AuditLog
	webhookSeen  map[string]bool // provider + ":" + eventID
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:     make(map[string]*domain.Booking),
		bySession:    make(map[string]string),
		byUser:       make(map[string][]string),
		transactions: make(map[string]*domain.Transaction),
		classes:      make(map[string]*domain.Class),
		events:       make(map[string]*domain.Event),
		users:        make(map[string]*domain.User),
		waitlist:     make(map[string]*domain.WaitlistEntry),
		refunds:      make(map[string][]*domain.Refund),
		webhookSeen:  make(map[string]bool),
	}
}

// AddClass seeds a class into the store
func (s *MemoryStore) AddClass(class *domain.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *class
	s.classes[class.ID] = &c
}

// AddEvent seeds an event into the store
func (s *MemoryStore) AddEvent(event *domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	s.events[event.ID] = &e
}

// AddUser seeds a user into the store
func (s *MemoryStore) AddUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *user
	s.users[user.ID] = &u
}

// Bookings returns the in-memory BookingRepository view of the store
func (s *MemoryStore) Bookings() *MemoryBookingRepository {
	return &MemoryBookingRepository{store: s}
}

// Transactions returns the in-memory TransactionRepository view of the store
func (s *MemoryStore) Transactions() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{store: s}
}

// Catalog returns the in-memory CatalogRepository view of the store
func (s *MemoryStore) Catalog() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{store: s}
}

// Waitlist returns the in-memory WaitlistRepository view of the store
func (s *MemoryStore) Waitlist() *MemoryWaitlistRepository {
	return &MemoryWaitlistRepository{store: s}
}

// Refunds returns the in-memory RefundRepository view of the store
func (s *MemoryStore) Refunds() *MemoryRefundRepository {
	return &MemoryRefundRepository{store: s}
}

// AuditLogs returns the in-memory AuditLogRepository view of the store
func (s *MemoryStore) AuditLogs() *MemoryAuditLogRepository {
	return &MemoryAuditLogRepository{store: s}
}

// WebhookEvents returns the in-memory WebhookEventRepository view of the store
func (s *MemoryStore) WebhookEvents() *MemoryWebhookEventRepository {
	return &MemoryWebhookEventRepository{store: s}
}

// MemoryBookingRepository implements BookingRepository using in-memory storage
type MemoryBookingRepository struct {
	store *MemoryStore
}

func (r *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clone to avoid external modifications
	b := *booking
	s.bookings[booking.ID] = &b
	if booking.ProviderSessionID != "" {
		s.bySession[booking.ProviderSessionID] = booking.ID
	}
	s.byUser[booking.UserID] = append(s.byUser[booking.UserID], booking.ID)
	return nil
}

func (r *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	booking, exists := s.bookings[id]
	if !exists {
		return nil, domain.ErrBookingNotFound
	}
	b := *booking
	return &b, nil
}

func (r *MemoryBookingRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Booking, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.bySession[sessionID]
	if !exists {
		return nil, domain.ErrBookingNotFound
	}
	b := *s.bookings[id]
	return &b, nil
}

func (r *MemoryBookingRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	bookings := make([]*domain.Booking, 0, len(ids))
	for _, id := range ids {
		if booking, exists := s.bookings[id]; exists {
			b := *booking
			bookings = append(bookings, &b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})

	if offset >= len(bookings) {
		return nil, nil
	}
	bookings = bookings[offset:]
	if limit > 0 && limit < len(bookings) {
		bookings = bookings[:limit]
	}
	return bookings, nil
}

func (r *MemoryBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.bookings[booking.ID]
	if !exists {
		return domain.ErrBookingNotFound
	}
	if old.ProviderSessionID != "" && old.ProviderSessionID != booking.ProviderSessionID {
		delete(s.bySession, old.ProviderSessionID)
	}
	b := *booking
	b.UpdatedAt = time.Now()
	s.bookings[booking.ID] = &b
	if booking.ProviderSessionID != "" {
		s.bySession[booking.ProviderSessionID] = booking.ID
	}
	return nil
}

func (r *MemoryBookingRepository) Delete(ctx context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, exists := s.bookings[id]
	if !exists {
		return domain.ErrBookingNotFound
	}
	delete(s.bookings, id)
	if booking.ProviderSessionID != "" {
		delete(s.bySession, booking.ProviderSessionID)
	}
	ids := s.byUser[booking.UserID]
	for i, bid := range ids {
		if bid == id {
			s.byUser[booking.UserID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryBookingRepository) ConfirmAndReserveSeat(ctx context.Context, id string, amountPaid float64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, exists := s.bookings[id]
	if !exists {
		return domain.ErrBookingNotFound
	}
	if booking.Status == domain.BookingStatusConfirmed {
		return domain.ErrAlreadyConfirmed
	}
	if booking.Status != domain.BookingStatusPending {
		return domain.ErrInvalidBookingStatus
	}

	if err := s.adjustCounterLocked(booking, +1); err != nil {
		return err
	}

	now := time.Now()
	booking.Status = domain.BookingStatusConfirmed
	booking.PaymentStatus = domain.PaymentStatusSucceeded
	booking.AmountPaid = amountPaid
	booking.ConfirmedAt = &now
	booking.UpdatedAt = now
	return nil
}

func (r *MemoryBookingRepository) CancelPending(ctx context.Context, id, paymentStatus, reason string) error {
	return r.store.cancelLocked(id, domain.BookingStatusPending, paymentStatus, reason, false)
}

func (r *MemoryBookingRepository) CancelConfirmedAndReleaseSeat(ctx context.Context, id, paymentStatus, reason string) error {
	return r.store.cancelLocked(id, domain.BookingStatusConfirmed, paymentStatus, reason, true)
}

func (r *MemoryBookingRepository) Reschedule(ctx context.Context, id, newClassID string, newTotal float64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, exists := s.bookings[id]
	if !exists {
		return domain.ErrBookingNotFound
	}
	if booking.ClassID == "" {
		return domain.ErrNotClassBooking
	}
	if booking.Status == domain.BookingStatusCancelled {
		return domain.ErrAlreadyCancelled
	}

	if booking.Status == domain.BookingStatusConfirmed {
		newClass, exists := s.classes[newClassID]
		if !exists {
			return domain.ErrClassNotFound
		}
		if newClass.CurrentStudents >= newClass.MaxStudents {
			return domain.ErrInsufficientSeats
		}
		newClass.CurrentStudents++
		if oldClass, exists := s.classes[booking.ClassID]; exists && oldClass.CurrentStudents > 0 {
			oldClass.CurrentStudents--
		}
	}

	booking.RescheduledFromClassID = booking.ClassID
	booking.ClassID = newClassID
	booking.TotalAmount = newTotal
	booking.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryBookingRepository) GetExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*domain.Booking
	for _, booking := range s.bookings {
		if booking.Status == domain.BookingStatusPending && booking.CreatedAt.Before(cutoff) {
			b := *booking
			expired = append(expired, &b)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})
	if limit > 0 && limit < len(expired) {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *MemoryStore) cancelLocked(id string, want domain.BookingStatus, paymentStatus, reason string, releaseSeat bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, exists := s.bookings[id]
	if !exists {
		return domain.ErrBookingNotFound
	}
	if booking.Status == domain.BookingStatusCancelled {
		return domain.ErrAlreadyCancelled
	}
	if booking.Status != want {
		return domain.ErrInvalidBookingStatus
	}

	if releaseSeat {
		if err := s.adjustCounterLocked(booking, -1); err != nil {
			return err
		}
	}

	now := time.Now()
	booking.Status = domain.BookingStatusCancelled
	booking.PaymentStatus = paymentStatus
	booking.CancellationReason = reason
	booking.CancelledAt = &now
	booking.UpdatedAt = now
	return nil
}

// adjustCounterLocked moves the capacity counter for the booking's item.
// Callers hold the write lock.
func (s *MemoryStore) adjustCounterLocked(booking *domain.Booking, delta int) error {
	if booking.ClassID != "" {
		class, exists := s.classes[booking.ClassID]
		if !exists {
			return domain.ErrClassNotFound
		}
		if delta > 0 && class.CurrentStudents >= class.MaxStudents {
			return domain.ErrInsufficientSeats
		}
		if delta < 0 && class.CurrentStudents == 0 {
			return nil
		}
		class.CurrentStudents += delta
		return nil
	}

	event, exists := s.events[booking.EventID]
	if !exists {
		return domain.ErrEventNotFound
	}
	if delta > 0 && event.CurrentAttendees >= event.MaxAttendees {
		return domain.ErrInsufficientSeats
	}
	if delta < 0 && event.CurrentAttendees == 0 {
		return nil
	}
	event.CurrentAttendees += delta
	return nil
}

// MemoryTransactionRepository implements TransactionRepository using in-memory storage
type MemoryTransactionRepository struct {
	store *MemoryStore
}

func (r *MemoryTransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *txn
	s.transactions[txn.ID] = &t
	return nil
}

func (r *MemoryTransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, exists := s.transactions[id]
	if !exists {
		return nil, domain.ErrTransactionNotFound
	}
	t := *txn
	return &t, nil
}

func (r *MemoryTransactionRepository) GetByBookingID(ctx context.Context, bookingID string) ([]*domain.Transaction, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txns []*domain.Transaction
	for _, txn := range s.transactions {
		if txn.BookingID == bookingID {
			t := *txn
			txns = append(txns, &t)
		}
	}
	sort.Slice(txns, func(i, j int) bool {
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})
	return txns, nil
}

func (r *MemoryTransactionRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Transaction, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, txn := range s.transactions {
		if txn.SessionID == sessionID {
			t := *txn
			return &t, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *MemoryTransactionRepository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*domain.Transaction, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, txn := range s.transactions {
		if txn.ProviderPaymentID == providerPaymentID {
			t := *txn
			return &t, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *MemoryTransactionRepository) Update(ctx context.Context, txn *domain.Transaction) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[txn.ID]; !exists {
		return domain.ErrTransactionNotFound
	}
	t := *txn
	t.UpdatedAt = time.Now()
	s.transactions[txn.ID] = &t
	return nil
}

func (r *MemoryTransactionRepository) Delete(ctx context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[id]; !exists {
		return domain.ErrTransactionNotFound
	}
	delete(s.transactions, id)
	return nil
}

// MemoryCatalogRepository implements CatalogRepository using in-memory storage
type MemoryCatalogRepository struct {
	store *MemoryStore
}

func (r *MemoryCatalogRepository) GetClass(ctx context.Context, id string) (*domain.Class, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	class, exists := s.classes[id]
	if !exists {
		return nil, domain.ErrClassNotFound
	}
	c := *class
	return &c, nil
}

func (r *MemoryCatalogRepository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, exists := s.events[id]
	if !exists {
		return nil, domain.ErrEventNotFound
	}
	e := *event
	return &e, nil
}

func (r *MemoryCatalogRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, domain.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

// MemoryWaitlistRepository implements WaitlistRepository using in-memory storage
type MemoryWaitlistRepository struct {
	store *MemoryStore
}

func (r *MemoryWaitlistRepository) Create(ctx context.Context, entry *domain.WaitlistEntry) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	maxPos := 0
	for _, existing := range s.waitlist {
		if existing.ItemID() != entry.ItemID() {
			continue
		}
		if existing.UserID == entry.UserID && existing.Status == domain.WaitlistStatusActive {
			return domain.ErrAlreadyOnWaitlist
		}
		if existing.Position > maxPos {
			maxPos = existing.Position
		}
	}

	e := *entry
	e.Position = maxPos + 1
	s.waitlist[entry.ID] = &e
	entry.Position = e.Position
	return nil
}

func (r *MemoryWaitlistRepository) NextActive(ctx context.Context, itemType domain.BookingType, itemID string) (*domain.WaitlistEntry, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *domain.WaitlistEntry
	for _, entry := range s.waitlist {
		if entry.Status != domain.WaitlistStatusActive || entry.ItemType() != itemType || entry.ItemID() != itemID {
			continue
		}
		if next == nil ||
			entry.Priority > next.Priority ||
			(entry.Priority == next.Priority && entry.Position < next.Position) {
			next = entry
		}
	}
	if next == nil {
		return nil, domain.ErrWaitlistEntryNotFound
	}
	e := *next
	return &e, nil
}

func (r *MemoryWaitlistRepository) MarkConverted(ctx context.Context, id string) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.waitlist[id]
	if !exists || entry.Status != domain.WaitlistStatusActive {
		return false, nil
	}
	entry.Status = domain.WaitlistStatusConverted
	entry.UpdatedAt = time.Now()
	return true, nil
}

// MemoryRefundRepository implements RefundRepository using in-memory storage
type MemoryRefundRepository struct {
	store *MemoryStore
}

func (r *MemoryRefundRepository) Create(ctx context.Context, refund *domain.Refund) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	f := *refund
	s.refunds[refund.BookingID] = append(s.refunds[refund.BookingID], &f)
	return nil
}

func (r *MemoryRefundRepository) GetByBookingID(ctx context.Context, bookingID string) ([]*domain.Refund, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.refunds[bookingID]
	refunds := make([]*domain.Refund, 0, len(stored))
	for _, refund := range stored {
		f := *refund
		refunds = append(refunds, &f)
	}
	sort.Slice(refunds, func(i, j int) bool {
		return refunds[i].RequestedAt.After(refunds[j].RequestedAt)
	})
	return refunds, nil
}

// MemoryAuditLogRepository implements AuditLogRepository using in-memory storage
type MemoryAuditLogRepository struct {
	store *MemoryStore
}

func (r *MemoryAuditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *entry
	s.auditLogs = append(s.auditLogs, &e)
	return nil
}

// MemoryWebhookEventRepository implements WebhookEventRepository using in-memory storage
type MemoryWebhookEventRepository struct {
	store *MemoryStore
}

func (r *MemoryWebhookEventRepository) MarkProcessed(ctx context.Context, provider domain.Provider, eventID string) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(provider) + ":" + eventID
	if s.webhookSeen[key] {
		return false, nil
	}
	s.webhookSeen[key] = true
	return true, nil
}

var (
	_ BookingRepository      = (*MemoryBookingRepository)(nil)
	_ TransactionRepository  = (*MemoryTransactionRepository)(nil)
	_ CatalogRepository      = (*MemoryCatalogRepository)(nil)
	_ WaitlistRepository     = (*MemoryWaitlistRepository)(nil)
	_ RefundRepository       = (*MemoryRefundRepository)(nil)
	_ AuditLogRepository     = (*MemoryAuditLogRepository)(nil)
	_ WebhookEventRepository = (*MemoryWebhookEventRepository)(nil)
)
