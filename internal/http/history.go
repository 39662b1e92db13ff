package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HistoryController surfaces reading statistics for the bookshelf.
type HistoryController struct {
	services RootServices
}

func NewHistoryController(services RootServices) *HistoryController {
	return &HistoryController{services: services}
}

// GetBookHistory returns a book's reading sessions and aggregate stats.
func (ctrl *HistoryController) GetBookHistory(c *gin.Context) {
	hist := ctrl.services.History()
	if hist == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "library not active", Kind: "not_active"})
		return
	}

	bookID := c.Param("id")
	sessions, err := hist.SessionsForBook(bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := hist.StatsForBook(bookID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "stats": stats})
}
