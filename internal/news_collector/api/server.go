// Package api is the HTTP control surface. Every tenant-scoped route reads
// the tenant from the X-Tenant-ID header.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"news-collector/internal/news_collector/model"
	"news-collector/internal/news_collector/scheduler"
	"news-collector/internal/news_collector/store"
)

const tenantHeader = "X-Tenant-ID"

type Server struct {
	Scheduler *scheduler.Service
	Content   store.ContentStore
	Log       *zap.Logger
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/config", s.getConfig)
	r.PUT("/config", s.putConfig)
	r.DELETE("/config", s.deleteConfig)

	r.GET("/status", s.getStatus)
	r.POST("/start", s.start)
	r.POST("/stop", s.stop)

	r.POST("/test-crawl", s.testCrawl)
	r.POST("/generate-report", s.generateReport)
	r.GET("/report/latest", s.latestReport)
	r.GET("/news", s.listNews)

	r.GET("/admin/status", s.adminStatus)
	return r
}

func (s *Server) tenant(c *gin.Context) (string, bool) {
	id := c.GetHeader(tenantHeader)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": tenantHeader + " header is required"})
		return "", false
	}
	return id, true
}

func (s *Server) getConfig(c *gin.Context) {
	tenantID, ok := s.tenant(c)
	if !ok {
		return
	}
	cfg, ok := s.Scheduler.GetTenant(tenantID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (s *Server) putConfig(c *gin.Context) {
	tenantID, ok := s.tenant(c)
	if !ok {
		return
	}
	var cfg model.TenantConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg.TenantID = tenantID
	if err := s.Scheduler.UpdateTenant(c, cfg); err != nil {
		var serr *model.SchedulerError
		if errors.As(err, &serr) && serr.Kind == model.SchedConfigInvalid {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.Log.Info("tenant config updated", zap.String("tenant", tenantID))
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (s *Server) deleteConfig(c *gin.Context) {
	tenantID, ok := s.tenant(c)
	if !ok {
		return
	}
	if err := s.Scheduler.RemoveTenant(c, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not configured"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": tenantID})
}

func (s *Server) getStatus(c *gin.Context) {
	tenantID, ok := s.tenant(c)
	if !ok {
		return
	}
	st, err := s.Scheduler.Status(tenantID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (s *Server) start(c *gin.Context) {
	tenantID, ok := s.tenant(c)
	if !ok {
		return
	}
	if err := s.Scheduler.StartTenant(tenantID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": tenantID})
}

func (s *Server) stop(c *gin.Context) {
	tenantID, ok := s.tenant(c)
	if !ok {
		return
	}
	if err := s.Scheduler.StopTenant(tenantID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": tenantID})
}

type testCrawlRequest struct {
	SourceName string `json:"source_name"`
}

// testCrawl runs one synchronous crawl so a freshly configured source can be
// verified without waiting for the schedule.
func (s *Server) testCrawl(c *gin.Context) {
	tenantID, ok := s.tenant(c)
	if !ok {
		return
	}
	var req testCrawlRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	run, err := s.Scheduler.TriggerCrawl(c, tenantID, req.SourceName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "data": run})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": run})
}

func (s *Server) generateReport(c *gin.Context) {
	tenantID, ok := s.tenant(c)
	if !ok {
		return
	}
	var req scheduler.ReportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	brief, err := s.Scheduler.GenerateReport(c, tenantID, req)
	if err != nil {
		var gerr *model.GenerationError
		if errors.As(err, &gerr) && gerr.Kind == model.GenNoContent {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": brief})
}

func (s *Server) latestReport(c *gin.Context) {
	tenantID, ok := s.tenant(c)
	if !ok {
		return
	}
	brief, ok := s.Scheduler.LatestBrief(tenantID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no brief generated yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": brief})
}

// listNews exposes the stored window for spot checks: ?hours=24
func (s *Server) listNews(c *gin.Context) {
	tenantID, ok := s.tenant(c)
	if !ok {
		return
	}
	cfg, ok := s.Scheduler.GetTenant(tenantID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not configured"})
		return
	}
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if hours <= 0 || hours > 24*30 {
		hours = 24
	}
	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	items, err := s.Content.QueryWindow(c, cfg.Report.KBIDs, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(items), "data": items})
}

func (s *Server) adminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.Scheduler.AllStatuses()})
}
