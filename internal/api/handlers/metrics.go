package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/claimtech/dialler/pkg/errors"
	"github.com/claimtech/dialler/pkg/logger"
	"github.com/claimtech/dialler/pkg/metrics"
)

func (h *Handler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.GetMetrics())
}

func (h *Handler) PrometheusMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	c.String(http.StatusOK, metrics.GetPrometheusMetrics())
}

// RunAging triggers an aging pass on demand. The lease lock makes this
// safe alongside the background ticker and external cron.
func (h *Handler) RunAging(c *gin.Context) {
	summary, err := h.aging.Run(c.Request.Context())
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	c.JSON(http.StatusOK, summary)
}
