package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/bookreader/internal/library"
)

// HealthController reports liveness and library state.
type HealthController struct {
	lib     *library.Store
	version string
}

func NewHealthController(lib *library.Store, version string) *HealthController {
	return &HealthController{lib: lib, version: version}
}

func (ctrl *HealthController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": ctrl.version,
		"active":  ctrl.lib.Active(),
	})
}
