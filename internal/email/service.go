package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/insominiac/dancemvp-backend/internal/logger"
)

const (
	queueKey       = "emails"
	failedQueueKey = "emails:failed"
	maxTries       = 3
)

// Mailer sends booking notifications. All sends are best-effort: callers
// log failures and carry on.
type Mailer interface {
	SendBookingConfirmation(ctx context.Context, to, name, itemTitle, confirmationCode string, startTime time.Time) error
	SendCancellation(ctx context.Context, to, name, itemTitle string, refundAmount float64) error
	SendWaitlistPromotion(ctx context.Context, to, name, itemTitle, checkoutURL string) error
}

// EmailJob is the serialized unit of work pushed onto the redis queue
type EmailJob struct {
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// Service queues emails in redis and drains the queue to SMTP from a
// background worker, so booking flows never wait on a mail server.
type Service struct {
	redis    *redis.Client
	from     string
	fromName string
	smtpHost string
	smtpPort string
	smtpUser string
	smtpPass string
}

// Config holds email service configuration
type Config struct {
	FromEmail string
	FromName  string
	SMTPHost  string
	SMTPPort  string
	SMTPUser  string
	SMTPPass  string
}

// New creates an email service backed by the given redis client
func New(rdb *redis.Client, cfg *Config) *Service {
	return &Service{
		redis:    rdb,
		from:     cfg.FromEmail,
		fromName: cfg.FromName,
		smtpHost: cfg.SMTPHost,
		smtpPort: cfg.SMTPPort,
		smtpUser: cfg.SMTPUser,
		smtpPass: cfg.SMTPPass,
	}
}

// Send queues an email for background delivery
func (s *Service) Send(ctx context.Context, to, name, subject, body string) error {
	job := EmailJob{
		To:      to,
		Name:    name,
		Subject: subject,
		Body:    body,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal email job: %w", err)
	}

	if err := s.redis.LPush(ctx, queueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to queue email: %w", err)
	}

	logger.Get().Info("email queued", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// Start drains the queue until the context is cancelled. Run in a goroutine.
func (s *Service) Start(ctx context.Context) {
	log := logger.Get()
	log.Info("email worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("email worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	log := logger.Get()

	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var job EmailJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		log.Error("bad email job data", zap.Error(err))
		return
	}

	job.Tries++
	if err := s.sendNow(job); err != nil {
		log.Error("failed to send email",
			zap.String("to", job.To),
			zap.Int("attempt", job.Tries),
			zap.Error(err))

		if job.Tries < maxTries {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, data)
		} else {
			s.saveFailed(job, err)
		}
		return
	}

	log.Info("email sent", zap.String("to", job.To), zap.String("subject", job.Subject))
}

func (s *Service) sendNow(job EmailJob) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.fromName, s.from)
	message += fmt.Sprintf("To: %s\r\n", job.To)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.smtpUser != "" && s.smtpPass != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPass, s.smtpHost)
	}

	addr := s.smtpHost + ":" + s.smtpPort
	return smtp.SendMail(addr, auth, s.from, []string{job.To}, []byte(message))
}

func (s *Service) saveFailed(job EmailJob, sendErr error) {
	failed := map[string]any{
		"job":   job,
		"error": sendErr.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedQueueKey, data)
	logger.Get().Error("email moved to failed queue", zap.String("to", job.To))
}

// QueueLength reports how many emails are waiting. Used by health checks.
func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	return length
}

// SendBookingConfirmation queues the booking confirmed email
func (s *Service) SendBookingConfirmation(ctx context.Context, to, name, itemTitle, confirmationCode string, startTime time.Time) error {
	subject := "Booking Confirmed - " + itemTitle
	body := fmt.Sprintf(`Hi %s,

Your booking is confirmed!

Class: %s
Confirmation code: %s
Time: %s

See you on the dance floor!

- DanceMVP Team`, name, itemTitle, confirmationCode, startTime.Format("Jan 2, 2006 at 3:04 PM"))

	return s.Send(ctx, to, name, subject, body)
}

// SendCancellation queues the booking cancelled email
func (s *Service) SendCancellation(ctx context.Context, to, name, itemTitle string, refundAmount float64) error {
	subject := "Booking Cancelled - " + itemTitle
	body := fmt.Sprintf(`Hi %s,

Your booking has been cancelled:

Class: %s
`, name, itemTitle)
	if refundAmount > 0 {
		body += fmt.Sprintf("\nA refund of $%.2f is being processed.\n", refundAmount)
	}
	body += "\n- DanceMVP Team"

	return s.Send(ctx, to, name, subject, body)
}

// SendWaitlistPromotion queues the waitlist promotion email
func (s *Service) SendWaitlistPromotion(ctx context.Context, to, name, itemTitle, checkoutURL string) error {
	subject := "A spot opened up - " + itemTitle
	body := fmt.Sprintf(`Hi %s,

A spot opened up in %s and it's yours if you want it.
Complete your payment to confirm:

%s

- DanceMVP Team`, name, itemTitle, checkoutURL)

	return s.Send(ctx, to, name, subject, body)
}

var _ Mailer = (*Service)(nil)

// NoOpMailer discards all emails. Used in tests and when SMTP is not configured.
type NoOpMailer struct{}

// NewNoOpMailer creates a mailer that does nothing
func NewNoOpMailer() *NoOpMailer {
	return &NoOpMailer{}
}

func (m *NoOpMailer) SendBookingConfirmation(ctx context.Context, to, name, itemTitle, confirmationCode string, startTime time.Time) error {
	return nil
}

func (m *NoOpMailer) SendCancellation(ctx context.Context, to, name, itemTitle string, refundAmount float64) error {
	return nil
}

func (m *NoOpMailer) SendWaitlistPromotion(ctx context.Context, to, name, itemTitle, checkoutURL string) error {
	return nil
}

var _ Mailer = (*NoOpMailer)(nil)
