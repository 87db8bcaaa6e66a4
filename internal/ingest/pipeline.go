// Package ingest turns one email attachment into an audited order.
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Gardner-Chu/order-automation-system/internal/database"
	"github.com/Gardner-Chu/order-automation-system/internal/validation"
	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// ErrUnsupportedAttachment is returned for attachment types no extractor handles
var ErrUnsupportedAttachment = errors.New("unsupported attachment type")

// Extractor derives order data from attachments
type Extractor interface {
	ExtractFromDocument(ctx context.Context, data string) (*models.ExtractionResult, error)
	ExtractFromImage(ctx context.Context, url string) (*models.ExtractionResult, error)
}

// Store is the persistence the pipeline needs
type Store interface {
	CreateProcessingLog(ctx context.Context, entry *models.ProcessingLog) error
	UpdateProcessingLogStatus(ctx context.Context, id int64, update database.LogUpdate) error
	CreateOrder(ctx context.Context, order *models.Order, items []*models.OrderItem) error
}

// ErrorRecorder receives failures for the listener status
type ErrorRecorder interface {
	RecordError(err error)
}

// Params describes one attachment to process
type Params struct {
	EmailID         string // "<configID>-<uid>"
	Subject         string
	From            string
	AttachmentName  string
	AttachmentIndex int // 0-based position within the email; tells same-named attachments apart
	AttachmentType  models.AttachmentType
	AttachmentURL   string
	Content         []byte
}

// Result outcome of processing one attachment
type Result struct {
	Success bool   `json:"success"`
	OrderID int64  `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Pipeline processes attachments
type Pipeline struct {
	store     Store
	extractor Extractor
	recorder  ErrorRecorder
	logger    *slog.Logger
	now       func() time.Time

	lastAutoNumber atomic.Int64
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(store Store, extractor Extractor, recorder ErrorRecorder, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		extractor: extractor,
		recorder:  recorder,
		logger:    logger.With("component", "ingest"),
		now:       time.Now,
	}
}

// ProcessEmailAttachment extracts, validates and stores the order contained in one
// attachment. Every call that gets past log creation leaves exactly one terminal
// processing log; a successful call creates exactly one order.
func (p *Pipeline) ProcessEmailAttachment(ctx context.Context, params Params) Result {
	logger := p.logger.With("email_id", params.EmailID, "attachment", params.AttachmentName)

	entry := &models.ProcessingLog{
		EmailID:        params.EmailID,
		EmailSubject:   params.Subject,
		EmailFrom:      params.From,
		AttachmentName: params.AttachmentName,
		AttachmentType: params.AttachmentType,
		Status:         models.ProcessingInProgress,
	}
	if err := p.store.CreateProcessingLog(ctx, entry); err != nil {
		logger.Error("failed to create processing log", "error", err)
		p.recordError(err)
		return Result{Error: err.Error()}
	}

	// The log must reach a terminal status even when the caller gives up
	logCtx := context.WithoutCancel(ctx)

	extraction, order, err := p.safeProcess(ctx, params)
	if err != nil {
		logger.Error("failed to process attachment", "error", err)
		p.recordError(err)

		msg := err.Error()
		if uerr := p.store.UpdateProcessingLogStatus(logCtx, entry.ID, database.LogUpdate{
			Status:       models.ProcessingFailed,
			ErrorMessage: &msg,
		}); uerr != nil {
			logger.Error("failed to update processing log", "log_id", entry.ID, "error", uerr)
		}
		return Result{Error: msg}
	}

	update := database.LogUpdate{
		Status:  models.ProcessingSuccess,
		OrderID: &order.ID,
	}
	if payload, err := json.Marshal(extraction); err == nil {
		s := string(payload)
		update.AIResponse = &s
	} else {
		logger.Warn("failed to serialize extraction", "error", err)
	}

	if err := p.store.UpdateProcessingLogStatus(logCtx, entry.ID, update); err != nil {
		// The order exists, so the attempt still counts as a success
		logger.Error("failed to update processing log", "log_id", entry.ID, "error", err)
		p.recordError(err)
	}

	logger.Info("order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"status", order.Status,
		"confidence", order.AIConfidence,
	)
	return Result{Success: true, OrderID: order.ID}
}

// safeProcess runs process and turns a panic into an error
func (p *Pipeline) safeProcess(ctx context.Context, params Params) (extraction *models.ExtractionResult, order *models.Order, err error) {
	defer func() {
		if r := recover(); r != nil {
			extraction, order = nil, nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.process(ctx, params)
}

func (p *Pipeline) process(ctx context.Context, params Params) (*models.ExtractionResult, *models.Order, error) {
	extraction, err := p.extract(ctx, params)
	if err != nil {
		return nil, nil, err
	}

	outcome := validation.Validate(extraction)
	order := p.buildOrder(params, extraction, outcome)

	items := make([]*models.OrderItem, 0, len(extraction.Items))
	for _, item := range extraction.Items {
		items = append(items, &models.OrderItem{
			ProductCode:   item.ProductCode,
			Quantity:      item.Quantity,
			Specification: optional(item.Specification),
			UnitPrice:     item.UnitPrice,
			TotalPrice:    item.TotalPrice,
		})
	}

	if err := p.store.CreateOrder(ctx, order, items); err != nil {
		return nil, nil, fmt.Errorf("failed to create order: %w", err)
	}

	return extraction, order, nil
}

func (p *Pipeline) extract(ctx context.Context, params Params) (*models.ExtractionResult, error) {
	var (
		result *models.ExtractionResult
		err    error
	)

	switch params.AttachmentType {
	case models.AttachmentExcel:
		result, err = p.extractor.ExtractFromDocument(ctx, base64.StdEncoding.EncodeToString(params.Content))
	case models.AttachmentImage:
		result, err = p.extractor.ExtractFromImage(ctx, params.AttachmentURL)
	case models.AttachmentPDF, models.AttachmentOther:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAttachment, params.AttachmentType)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAttachment, params.AttachmentType)
	}

	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("extraction failed: empty result")
	}
	return result, nil
}

func (p *Pipeline) buildOrder(params Params, extraction *models.ExtractionResult, outcome validation.Outcome) *models.Order {
	now := p.now()

	order := &models.Order{
		OrderNumber:     strings.TrimSpace(extraction.OrderNumber),
		CustomerName:    strings.TrimSpace(extraction.CustomerName),
		CustomerEmail:   optional(extraction.CustomerEmail),
		OrderDate:       now,
		Status:          models.OrderPending,
		SourceEmailID:   params.EmailID,
		AttachmentName:  params.AttachmentName,
		AttachmentIndex: params.AttachmentIndex,
		AIConfidence:    extraction.Confidence,
		AttachmentURL:   params.AttachmentURL,
	}

	if order.OrderNumber == "" {
		order.OrderNumber = p.autoNumber(now)
	}
	if order.CustomerName == "" {
		order.CustomerName = models.UnknownCustomer
	}
	if t, ok := parseDate(extraction.OrderDate); ok {
		order.OrderDate = t
	}
	if t, ok := parseDate(extraction.DeliveryDate); ok {
		order.DeliveryDate = &t
	}

	if !outcome.Valid {
		order.Status = models.OrderException
		notes := outcome.Notes()
		order.Notes = &notes
	}

	return order
}

// autoNumber returns AUTO-<unix millis>, bumped so numbers stay unique within the process
func (p *Pipeline) autoNumber(now time.Time) string {
	n := now.UnixMilli()
	for {
		last := p.lastAutoNumber.Load()
		if n <= last {
			n = last + 1
		}
		if p.lastAutoNumber.CompareAndSwap(last, n) {
			return fmt.Sprintf("AUTO-%d", n)
		}
	}
}

func (p *Pipeline) recordError(err error) {
	if p.recorder != nil {
		p.recorder.RecordError(err)
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
