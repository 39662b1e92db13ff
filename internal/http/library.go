package http

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/bookreader/internal/covers"
	"github.com/openshelf/bookreader/internal/entities"
	"github.com/openshelf/bookreader/internal/history"
	"github.com/openshelf/bookreader/internal/library"
)

// RootServices exposes the services that only exist once a storage root is
// active. Accessors return nil before activation.
type RootServices interface {
	History() *history.Store
	Covers() *covers.Cache
	EnqueueCoverExtraction(bookID string)
}

// LibraryController serves the bookshelf: listing, import, delete, rename
// and direct progress writes.
type LibraryController struct {
	lib      *library.Store
	services RootServices
}

func NewLibraryController(lib *library.Store, services RootServices) *LibraryController {
	return &LibraryController{lib: lib, services: services}
}

// ListBooks returns the snapshot the bookshelf renders, most recently read
// first.
func (ctrl *LibraryController) ListBooks(c *gin.Context) {
	books := ctrl.lib.ListBooks()
	if books == nil {
		books = []entities.Book{}
	}
	c.JSON(http.StatusOK, gin.H{"books": books, "count": len(books)})
}

// GetBook returns a single book record.
func (ctrl *LibraryController) GetBook(c *gin.Context) {
	book, err := ctrl.lib.GetBook(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

type importRequest struct {
	Path string `json:"path" binding:"required"`
}

// ImportBook imports a book either from a multipart upload ("file" field) or
// from a local path in a JSON body. Re-importing known content returns the
// existing book unchanged.
func (ctrl *LibraryController) ImportBook(c *gin.Context) {
	sourcePath, cleanup, err := ctrl.stageSource(c)
	if err != nil {
		return // stageSource already responded
	}
	defer cleanup()

	book, err := ctrl.lib.ImportBook(c.Request.Context(), sourcePath)
	if err != nil {
		if errors.Is(err, entities.ErrDuplicateBook) {
			c.JSON(http.StatusOK, gin.H{"book": book, "duplicate": true})
			return
		}
		respondError(c, err)
		return
	}

	ctrl.services.EnqueueCoverExtraction(book.ID)
	c.JSON(http.StatusCreated, gin.H{"book": book, "duplicate": false})
}

// stageSource resolves the import source to a local file path, spooling an
// upload to a temp directory if needed. On error it writes the response and
// returns a non-nil error.
func (ctrl *LibraryController) stageSource(c *gin.Context) (string, func(), error) {
	noop := func() {}

	if file, err := c.FormFile("file"); err == nil {
		tmpDir, err := os.MkdirTemp("", "bookreader-upload-*")
		if err != nil {
			respondError(c, err)
			return "", noop, err
		}
		// Keep the original filename: the extension drives format dispatch.
		dst := filepath.Join(tmpDir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, dst); err != nil {
			os.RemoveAll(tmpDir)
			respondError(c, err)
			return "", noop, err
		}
		return dst, func() { os.RemoveAll(tmpDir) }, nil
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "provide a multipart 'file' or a JSON body with 'path'")
		return "", noop, err
	}
	return req.Path, noop, nil
}

// DeleteBook removes the book, its progress, and its history.
func (ctrl *LibraryController) DeleteBook(c *gin.Context) {
	bookID := c.Param("id")
	if err := ctrl.lib.DeleteBook(c.Request.Context(), bookID); err != nil {
		respondError(c, err)
		return
	}
	if hist := ctrl.services.History(); hist != nil {
		if err := hist.DeleteForBook(bookID); err != nil {
			// The book is gone; stale history rows are harmless.
			log.Printf("WARNING: could not delete history for %s: %v", bookID, err)
		}
	}
	c.Status(http.StatusNoContent)
}

type renameRequest struct {
	Title string `json:"title" binding:"required"`
}

// RenameBook updates the display title.
func (ctrl *LibraryController) RenameBook(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "title is required")
		return
	}
	if err := ctrl.lib.RenameBook(c.Param("id"), req.Title); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "renamed"})
}

// UpdateProgress writes a progress record directly, for shells that manage
// their own reader and only need durability.
func (ctrl *LibraryController) UpdateProgress(c *gin.Context) {
	var p entities.Progress
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBadRequest(c, "position and fraction are required")
		return
	}
	if err := ctrl.lib.UpdateProgress(c.Request.Context(), c.Param("id"), p); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "progress updated"})
}

// GetCover serves the cached cover image for a book.
func (ctrl *LibraryController) GetCover(c *gin.Context) {
	cache := ctrl.services.Covers()
	if cache == nil {
		respondNotFound(c, "cover")
		return
	}
	path, ok := cache.CoverPath(c.Param("id"))
	if !ok {
		respondNotFound(c, "cover")
		return
	}
	c.File(path)
}
