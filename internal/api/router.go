// Package api exposes the listener controls and the review data over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gardner-Chu/order-automation-system/internal/database"
	"github.com/Gardner-Chu/order-automation-system/internal/email"
	"github.com/Gardner-Chu/order-automation-system/internal/ingest"
	"github.com/Gardner-Chu/order-automation-system/internal/listener"
	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// Controller is the listener surface the API drives
type Controller interface {
	Start(interval time.Duration)
	Stop()
	Restart(interval time.Duration)
	Status() listener.Status
	TriggerManualSync(ctx context.Context) listener.SyncResult
	TestConnection(ctx context.Context, params email.ConnectParams) listener.ConnectionResult
}

// Processor runs the ingestion pipeline for a single attachment
type Processor interface {
	ProcessEmailAttachment(ctx context.Context, params ingest.Params) ingest.Result
}

// ObjectStore keeps uploaded attachments
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Store is the review data the API reads and updates
type Store interface {
	ListOrders(ctx context.Context, params database.ListParams) ([]*models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.OrderWithItems, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus, notes *string) error
	ListProcessingLogs(ctx context.Context, params database.ListParams) ([]*models.ProcessingLog, error)
	GetDashboardStats(ctx context.Context) (*models.DashboardStats, error)
	ListMailboxConfigs(ctx context.Context) ([]*models.MailboxConfig, error)
	UpsertMailboxConfig(ctx context.Context, cfg *models.MailboxConfig) error
}

// Deps everything the handlers need
type Deps struct {
	Listener Controller
	Pipeline Processor
	Store    Store
	Objects  ObjectStore
	Files    http.FileSystem // Serves stored objects under /objects when set
	Interval time.Duration   // Default listener interval
	Logger   *slog.Logger
}

type server struct {
	Deps
	logger *slog.Logger
}

// NewRouter wires every HTTP endpoint with closure handlers over the shared dependencies
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	s := &server{Deps: d, logger: d.Logger.With("component", "api")}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if d.Files != nil {
		r.StaticFS("/objects", d.Files)
	}

	api := r.Group("/api")
	{
		l := api.Group("/listener")
		{
			l.GET("/status", func(c *gin.Context) { s.handleListenerStatus(c) })
			l.POST("/start", func(c *gin.Context) { s.handleListenerStart(c) })
			l.POST("/stop", func(c *gin.Context) { s.handleListenerStop(c) })
			l.POST("/restart", func(c *gin.Context) { s.handleListenerRestart(c) })
			l.POST("/sync", func(c *gin.Context) { s.handleManualSync(c) })
			l.POST("/test-connection", func(c *gin.Context) { s.handleTestConnection(c) })
		}

		api.POST("/attachments/process", func(c *gin.Context) { s.handleProcessAttachment(c) })

		api.GET("/orders", func(c *gin.Context) { s.handleListOrders(c) })
		api.GET("/orders/:id", func(c *gin.Context) { s.handleGetOrder(c) })
		api.PATCH("/orders/:id/status", func(c *gin.Context) { s.handleUpdateOrderStatus(c) })

		api.GET("/logs", func(c *gin.Context) { s.handleListLogs(c) })
		api.GET("/stats", func(c *gin.Context) { s.handleStats(c) })

		api.GET("/mailboxes", func(c *gin.Context) { s.handleListMailboxes(c) })
		api.PUT("/mailboxes", func(c *gin.Context) { s.handleUpsertMailbox(c) })
	}

	return r
}
