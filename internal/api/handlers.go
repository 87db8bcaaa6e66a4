package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Gardner-Chu/order-automation-system/internal/attachment"
	"github.com/Gardner-Chu/order-automation-system/internal/database"
	"github.com/Gardner-Chu/order-automation-system/internal/email"
	"github.com/Gardner-Chu/order-automation-system/internal/ingest"
	"github.com/Gardner-Chu/order-automation-system/internal/storage"
	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

type intervalRequest struct {
	IntervalSeconds int `json:"intervalSeconds"`
}

type connectionRequest struct {
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port"`
	User     string `json:"user" binding:"required"`
	Password string `json:"password"`
	UseTLS   *bool  `json:"useTls"`
}

type processRequest struct {
	EmailID         string `json:"emailId"`
	Subject         string `json:"subject"`
	From            string `json:"from"`
	AttachmentName  string `json:"attachmentName" binding:"required"`
	AttachmentIndex int    `json:"attachmentIndex"`
	ContentType     string `json:"contentType"`
	AttachmentType  string `json:"attachmentType"`             // Classified from name and content type when empty
	Content         string `json:"content" binding:"required"` // base64
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Notes  *string            `json:"notes"`
}

type mailboxRequest struct {
	Name     string `json:"name" binding:"required"`
	Host     string `json:"host"` // Derived from user when empty
	Port     int    `json:"port"`
	User     string `json:"user" binding:"required"`
	Password string `json:"password"`
	UseTLS   *bool  `json:"useTls"`
	Folder   string `json:"folder"`
	IsActive *bool  `json:"isActive"`
}

/* ---------- listener ---------- */

func (s *server) handleListenerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Listener.Status())
}

func (s *server) handleListenerStart(c *gin.Context) {
	interval, ok := bindInterval(c, s.Interval)
	if !ok {
		return
	}
	s.Listener.Start(interval)
	c.JSON(http.StatusOK, s.Listener.Status())
}

func (s *server) handleListenerStop(c *gin.Context) {
	s.Listener.Stop()
	c.JSON(http.StatusOK, s.Listener.Status())
}

func (s *server) handleListenerRestart(c *gin.Context) {
	// Without a body the listener keeps its current interval
	interval, ok := bindInterval(c, 0)
	if !ok {
		return
	}
	s.Listener.Restart(interval)
	c.JSON(http.StatusOK, s.Listener.Status())
}

func (s *server) handleManualSync(c *gin.Context) {
	c.JSON(http.StatusOK, s.Listener.TriggerManualSync(c.Request.Context()))
}

func (s *server) handleTestConnection(c *gin.Context) {
	var in connectionRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	params := email.ConnectParams{
		Host:     in.Host,
		Port:     in.Port,
		User:     in.User,
		Password: in.Password,
		UseTLS:   true,
	}
	if params.Port == 0 {
		params.Port = email.DefaultIMAPSPort
	}
	if in.UseTLS != nil {
		params.UseTLS = *in.UseTLS
	}

	c.JSON(http.StatusOK, s.Listener.TestConnection(c.Request.Context(), params))
}

// bindInterval reads an optional {"intervalSeconds": n} body, returning fallback when absent
func bindInterval(c *gin.Context, fallback time.Duration) (time.Duration, bool) {
	var in intervalRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return 0, false
		}
	}
	if in.IntervalSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "intervalSeconds must be positive"})
		return 0, false
	}
	if in.IntervalSeconds == 0 {
		return fallback, true
	}
	return time.Duration(in.IntervalSeconds) * time.Second, true
}

/* ---------- attachments ---------- */

func (s *server) handleProcessAttachment(c *gin.Context) {
	var in processRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if in.AttachmentIndex < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "attachmentIndex must not be negative"})
		return
	}

	content, err := base64.StdEncoding.DecodeString(in.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must be base64"})
		return
	}

	kind := models.AttachmentType(in.AttachmentType)
	if kind == "" {
		kind = attachment.Classify(in.ContentType, in.AttachmentName)
	}
	if !kind.Supported() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unsupported attachment type"})
		return
	}

	ctx := c.Request.Context()
	id := uuid.NewString()
	key := fmt.Sprintf("manual-uploads/%s-%s", id, storage.SanitizeName(in.AttachmentName))
	url, err := s.Objects.Put(ctx, key, content, in.ContentType)
	if err != nil {
		s.logger.Error("failed to store attachment", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to store attachment"})
		return
	}

	emailID := in.EmailID
	if emailID == "" {
		emailID = "manual-" + id
	}

	result := s.Pipeline.ProcessEmailAttachment(ctx, ingest.Params{
		EmailID:         emailID,
		Subject:         in.Subject,
		From:            in.From,
		AttachmentName:  in.AttachmentName,
		AttachmentIndex: in.AttachmentIndex,
		AttachmentType:  kind,
		AttachmentURL:   url,
		Content:         content,
	})
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

/* ---------- orders ---------- */

func (s *server) handleListOrders(c *gin.Context) {
	params, ok := listParams(c)
	if !ok {
		return
	}

	orders, err := s.Store.ListOrders(c.Request.Context(), params)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *server) handleGetOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, err := s.Store.GetOrderByID(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *server) handleUpdateOrderStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var in statusRequest
	if err := c.ShouldBindJSON(&in); err != nil || !in.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	err := s.Store.UpdateOrderStatus(c.Request.Context(), id, in.Status, in.Notes)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

/* ---------- logs & stats ---------- */

func (s *server) handleListLogs(c *gin.Context) {
	params, ok := listParams(c)
	if !ok {
		return
	}

	logs, err := s.Store.ListProcessingLogs(c.Request.Context(), params)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *server) handleStats(c *gin.Context) {
	stats, err := s.Store.GetDashboardStats(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

/* ---------- mailboxes ---------- */

func (s *server) handleListMailboxes(c *gin.Context) {
	configs, err := s.Store.ListMailboxConfigs(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

func (s *server) handleUpsertMailbox(c *gin.Context) {
	var in mailboxRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	cfg := &models.MailboxConfig{
		Name:     in.Name,
		Host:     in.Host,
		Port:     in.Port,
		User:     in.User,
		Password: in.Password,
		UseTLS:   true,
		Folder:   in.Folder,
		IsActive: true,
	}
	if in.UseTLS != nil {
		cfg.UseTLS = *in.UseTLS
	}
	if in.IsActive != nil {
		cfg.IsActive = *in.IsActive
	}
	if err := email.FillServer(cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Store.UpsertMailboxConfig(c.Request.Context(), cfg); err != nil {
		s.internalError(c, err)
		return
	}

	// Sessions pick up the new settings on the next start
	if s.Listener.Status().IsRunning {
		go s.Listener.Restart(0)
	}

	c.JSON(http.StatusOK, cfg)
}

/* ---------- helpers ---------- */

func (s *server) internalError(c *gin.Context, err error) {
	s.logger.Error("request failed", "path", c.FullPath(), "error", err, "request_id", c.GetString("requestID"))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

func listParams(c *gin.Context) (database.ListParams, bool) {
	params := database.ListParams{Status: c.Query("status")}

	for name, dst := range map[string]*int{"limit": &params.Limit, "offset": &params.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
			return params, false
		}
		*dst = n
	}

	return params, true
}
