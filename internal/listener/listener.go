// Package listener polls mailboxes for order attachments and feeds them to the
// ingestion pipeline.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gardner-Chu/order-automation-system/internal/attachment"
	"github.com/Gardner-Chu/order-automation-system/internal/dedup"
	"github.com/Gardner-Chu/order-automation-system/internal/email"
	"github.com/Gardner-Chu/order-automation-system/internal/ingest"
	"github.com/Gardner-Chu/order-automation-system/internal/storage"
	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// DefaultInterval between sweeps
const DefaultInterval = 30 * time.Second

// ErrSweepInProgress is returned when a sweep is requested while one is running
var ErrSweepInProgress = errors.New("sweep already in progress")

// Store is the mailbox configuration storage the listener reads
type Store interface {
	ListActiveMailboxConfigs(ctx context.Context) ([]*models.MailboxConfig, error)
	UpdateMailboxConfigLastSync(ctx context.Context, id int64, at time.Time) error
}

// ObjectStore keeps uploaded attachments
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Processor turns one attachment into an order
type Processor interface {
	ProcessEmailAttachment(ctx context.Context, params ingest.Params) ingest.Result
}

// Config listener tuning
type Config struct {
	Retry        RetryPolicy
	RestartDelay time.Duration
}

// SyncResult outcome of a manual sync
type SyncResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ConnectionResult outcome of a connection test
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Listener sweeps all active mailboxes on a timer
type Listener struct {
	store     Store
	dialer    email.Dialer
	objects   ObjectStore
	processor Processor
	filter    dedup.Filter
	registry  *Registry
	config    Config
	logger    *slog.Logger

	mu       sync.Mutex
	stopCh   chan struct{}
	done     chan struct{}
	interval time.Duration // Of the last start

	sweeping atomic.Bool

	now   func() time.Time
	sleep sleepFunc
}

// New creates a stopped listener
func New(store Store, dialer email.Dialer, objects ObjectStore, processor Processor, registry *Registry, cfg Config, logger *slog.Logger) *Listener {
	if cfg.Retry.ConnectAttempts < 1 {
		cfg.Retry.ConnectAttempts = 1
	}
	if cfg.Retry.UploadAttempts < 1 {
		cfg.Retry.UploadAttempts = 1
	}

	return &Listener{
		store:     store,
		dialer:    dialer,
		objects:   objects,
		processor: processor,
		filter:    dedup.Nop{},
		registry:  registry,
		config:    cfg,
		logger:    logger.With("component", "listener"),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// SetFilter sets the duplicate filter consulted before each attachment
func (l *Listener) SetFilter(f dedup.Filter) {
	if f == nil {
		f = dedup.Nop{}
	}
	l.filter = f
}

// Start runs a sweep immediately and then every interval.
// A zero interval reuses the one of the previous start.
// Starting a running listener does nothing.
func (l *Listener) Start(interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopCh != nil {
		l.logger.Info("listener already running")
		return
	}

	if interval <= 0 {
		interval = l.interval
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	l.interval = interval

	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})
	l.registry.SetRunning(true)

	go l.run(interval, l.stopCh, l.done)

	l.logger.Info("listener started", "interval", interval)
}

// Stop cancels the timer. A sweep in flight runs to completion.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopCh == nil {
		return
	}

	close(l.stopCh)
	l.stopCh = nil
	l.registry.SetRunning(false)

	l.logger.Info("listener stopped")
}

// Restart stops, waits the restart delay and starts again.
// A zero interval keeps the current one.
func (l *Listener) Restart(interval time.Duration) {
	l.Stop()
	l.sleep(context.Background(), l.config.RestartDelay)
	l.Start(interval)
}

// Wait blocks until the loop goroutine of the last start has exited or ctx is done
func (l *Listener) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interval returns the interval of the last start, zero before the first one
func (l *Listener) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// Status returns the current listener status
func (l *Listener) Status() Status {
	return l.registry.Snapshot()
}

// TriggerManualSync runs one sweep now, independent of the timer
func (l *Listener) TriggerManualSync(ctx context.Context) SyncResult {
	if err := l.runSweep(ctx); err != nil {
		return SyncResult{Message: fmt.Sprintf("sync failed: %v", err)}
	}
	return SyncResult{Success: true, Message: "sync completed"}
}

// TestConnection opens a session, selects INBOX and closes it again
func (l *Listener) TestConnection(ctx context.Context, params email.ConnectParams) ConnectionResult {
	if params.AuthTimeout == 0 {
		params.AuthTimeout = l.config.Retry.AuthTimeout
	}

	session, err := l.dialer.Dial(ctx, params)
	if err != nil {
		return ConnectionResult{Message: fmt.Sprintf("connection failed: %v", err)}
	}
	defer session.Close()

	if err := session.OpenFolder(ctx, "INBOX"); err != nil {
		return ConnectionResult{Message: fmt.Sprintf("connection failed: %v", err)}
	}

	return ConnectionResult{Success: true, Message: "connection succeeded"}
}

func (l *Listener) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	l.timerSweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Stop may have raced with the tick
			select {
			case <-stop:
				return
			default:
			}
			l.timerSweep()
		}
	}
}

func (l *Listener) timerSweep() {
	if err := l.runSweep(context.Background()); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			l.logger.Warn("previous sweep still running, skipping")
			return
		}
		l.logger.Error("sweep failed", "error", err)
	}
}

// runSweep guards against overlapping sweeps and recovers panics so the loop survives
func (l *Listener) runSweep(ctx context.Context) (err error) {
	if !l.sweeping.CompareAndSwap(false, true) {
		return ErrSweepInProgress
	}
	defer l.sweeping.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
			l.registry.RecordError(err)
		}
	}()

	return l.sweep(ctx)
}

func (l *Listener) sweep(ctx context.Context) error {
	configs, err := l.store.ListActiveMailboxConfigs(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load mailbox configs: %w", err)
		l.registry.RecordError(err)
		return err
	}

	if len(configs) == 0 {
		l.logger.Debug("no active mailbox configs")
		return nil
	}

	for _, cfg := range configs {
		if err := l.syncMailbox(ctx, cfg); err != nil {
			l.logger.Error("mailbox sync failed", "mailbox", cfg.Name, "error", err)
			l.registry.RecordError(err)
			continue
		}
	}

	return nil
}

func (l *Listener) syncMailbox(ctx context.Context, cfg *models.MailboxConfig) (err error) {
	logger := l.logger.With("mailbox", cfg.Name, "config_id", cfg.ID)

	// A panic fails this mailbox only; the sweep goes on with the next one
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mailbox %s: panic: %v", cfg.Name, r)
		}
	}()

	session, err := l.connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("mailbox %s: %w", cfg.Name, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
	}()

	folder := cfg.FolderOrDefault()
	if err := session.OpenFolder(ctx, folder); err != nil {
		return fmt.Errorf("mailbox %s: %w", cfg.Name, err)
	}

	messages, err := session.SearchUnseen(ctx)
	if err != nil {
		return fmt.Errorf("mailbox %s: %w", cfg.Name, err)
	}

	logger.Info("found unseen messages", "folder", folder, "count", len(messages))

	for _, msg := range messages {
		l.processMessage(ctx, session, cfg, msg, logger)
	}

	syncedAt := l.now()
	if err := l.store.UpdateMailboxConfigLastSync(ctx, cfg.ID, syncedAt); err != nil {
		return fmt.Errorf("mailbox %s: %w", cfg.Name, err)
	}
	l.registry.RecordSync(syncedAt)

	logger.Info("mailbox synced")
	return nil
}

func (l *Listener) connect(ctx context.Context, cfg *models.MailboxConfig, logger *slog.Logger) (email.Session, error) {
	params := email.ParamsFromConfig(cfg, l.config.Retry.AuthTimeout)

	var session email.Session
	err := retry(ctx, l.config.Retry.ConnectAttempts, l.config.Retry.ConnectDelay, l.sleep, func(attempt int) error {
		s, err := l.dialer.Dial(ctx, params)
		if err != nil {
			logger.Warn("connection failed",
				"attempt", attempt,
				"attempts_left", l.config.Retry.ConnectAttempts-attempt,
				"error", err,
			)
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// processMessage handles every attachment of msg and marks it seen afterwards.
// Failures are recorded, never returned.
func (l *Listener) processMessage(ctx context.Context, session email.Session, cfg *models.MailboxConfig, msg *email.FetchedMessage, logger *slog.Logger) {
	emailID := fmt.Sprintf("%d-%d", cfg.ID, msg.UID)
	logger = logger.With("email_id", emailID)

	parsed, err := email.Parse(msg.Raw)
	if err != nil {
		logger.Error("failed to parse message", "error", err)
		l.registry.RecordError(fmt.Errorf("message %s: %w", emailID, err))
	}

	if parsed != nil {
		if len(parsed.Attachments) == 0 {
			logger.Debug("no attachments", "subject", parsed.Subject)
		}

		names := make(map[string]int, len(parsed.Attachments))
		for i, att := range parsed.Attachments {
			// Same-named attachments get their position in the object name
			objectName := storage.SanitizeName(att.Filename)
			names[objectName]++
			if names[objectName] > 1 {
				objectName = fmt.Sprintf("%d-%s", i, objectName)
			}

			l.processAttachment(ctx, cfg, emailID, parsed, attachmentRef{
				Attachment: att,
				index:      i,
				objectName: objectName,
			}, logger)
		}
	}

	if err := session.MarkSeen(ctx, msg.UID); err != nil {
		logger.Error("failed to mark message seen", "error", err)
		l.registry.RecordError(fmt.Errorf("message %s: %w", emailID, err))
	}
}

// attachmentRef an attachment together with its place in the message
type attachmentRef struct {
	*email.Attachment
	index      int
	objectName string
}

func (l *Listener) processAttachment(ctx context.Context, cfg *models.MailboxConfig, emailID string, msg *email.ParsedMessage, att attachmentRef, logger *slog.Logger) {
	logger = logger.With("attachment", att.Filename, "index", att.index)

	// A panic stays with its attachment; the message is still marked seen
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("attachment %s of %s: panic: %v", att.Filename, emailID, r)
			logger.Error("attachment processing panicked", "panic", r)
			l.registry.RecordError(err)
		}
	}()

	kind := attachment.Classify(att.ContentType, att.Filename)
	if !kind.Supported() {
		logger.Debug("skipping unsupported attachment", "content_type", att.ContentType)
		return
	}

	key := dedup.Key(emailID, att.index, att.Filename)
	seen, err := l.filter.Seen(ctx, key)
	if err != nil {
		logger.Warn("duplicate filter unavailable", "error", err)
	}
	if seen {
		logger.Debug("attachment already ingested")
		return
	}

	url, err := l.upload(ctx, cfg, att, logger)
	if err != nil {
		logger.Error("failed to upload attachment", "error", err)
		l.registry.RecordError(fmt.Errorf("upload %s: %w", att.Filename, err))
		return
	}

	result := l.processor.ProcessEmailAttachment(ctx, ingest.Params{
		EmailID:         emailID,
		Subject:         msg.Subject,
		From:            msg.From,
		AttachmentName:  att.Filename,
		AttachmentIndex: att.index,
		AttachmentType:  kind,
		AttachmentURL:   url,
		Content:         att.Content,
	})
	if !result.Success {
		// Counted by the pipeline
		return
	}

	l.registry.RecordProcessed()
	if err := l.filter.Mark(ctx, key); err != nil {
		logger.Warn("failed to mark attachment ingested", "error", err)
	}
}

func (l *Listener) upload(ctx context.Context, cfg *models.MailboxConfig, att attachmentRef, logger *slog.Logger) (string, error) {
	var url string
	err := retry(ctx, l.config.Retry.UploadAttempts, l.config.Retry.UploadDelay, l.sleep, func(attempt int) error {
		key := fmt.Sprintf("email-attachments/%d/%d-%s", cfg.ID, l.now().UnixMilli(), att.objectName)
		u, err := l.objects.Put(ctx, key, att.Content, att.ContentType)
		if err != nil {
			logger.Warn("upload failed", "attempt", attempt, "error", err)
			return err
		}
		url = u
		return nil
	})
	return url, err
}
