package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/bookreader/internal/library"
	"github.com/openshelf/bookreader/internal/pathstore"
)

// ActivateFunc binds the library to a root and starts the root-scoped
// services (history, tasks, watcher). Supplied by the entrypoint.
type ActivateFunc func(ctx context.Context, root string) error

// SetupController drives the storage-setup flow: first launch, invalid
// roots, and explicit reconfiguration all land here.
type SetupController struct {
	paths    *pathstore.Store
	lib      *library.Store
	activate ActivateFunc
}

func NewSetupController(paths *pathstore.Store, lib *library.Store, activate ActivateFunc) *SetupController {
	return &SetupController{paths: paths, lib: lib, activate: activate}
}

type storageState struct {
	Path       string `json:"path,omitempty"`
	Configured bool   `json:"configured"`
	Active     bool   `json:"active"`
	Status     string `json:"status,omitempty"`
}

// GetStorage reports the current storage configuration. The shell uses it on
// boot to decide between the bookshelf and the setup flow.
func (ctrl *SetupController) GetStorage(c *gin.Context) {
	state := storageState{Active: ctrl.lib.Active()}
	if path, ok := ctrl.paths.ConfiguredPath(); ok {
		state.Path = path
		state.Configured = true
		state.Status = ctrl.lib.ValidateRoot(path).String()
	}
	c.JSON(http.StatusOK, state)
}

type setStorageRequest struct {
	Path string `json:"path" binding:"required"`
}

// SetStorage validates a candidate root, activates the library on it, and
// persists the choice. Validation failures return the status so the setup
// screen can explain what is wrong.
func (ctrl *SetupController) SetStorage(c *gin.Context) {
	var req setStorageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "path is required")
		return
	}

	if status := ctrl.lib.ValidateRoot(req.Path); status != library.RootValid {
		c.JSON(http.StatusUnprocessableEntity, storageState{
			Path:       req.Path,
			Configured: false,
			Status:     status.String(),
		})
		return
	}

	if err := ctrl.activate(c.Request.Context(), req.Path); err != nil {
		respondError(c, err)
		return
	}
	if err := ctrl.paths.SetConfiguredPath(req.Path); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, storageState{
		Path:       req.Path,
		Configured: true,
		Active:     true,
		Status:     library.RootValid.String(),
	})
}

// ClearStorage forgets the configured path. The running library stays bound
// until restart; the next launch re-enters setup.
func (ctrl *SetupController) ClearStorage(c *gin.Context) {
	if err := ctrl.paths.ClearConfiguredPath(); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
