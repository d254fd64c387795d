// Package handlers wires the HTTP API to the recognition use case.
package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/bookcover/internal/catalog"
	"github.com/example/bookcover/internal/usecase"
)

// MaxUploadSize caps cover image uploads at 10 MiB.
const MaxUploadSize = 10 << 20

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Everything
// except the health check sits behind the auth middleware.
func RegisterRoutes(router *gin.Engine, uc *usecase.RecognitionUseCase, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authorized := router.Group("/")
	authorized.Use(authMiddleware)

	authorized.POST("/books", func(c *gin.Context) { handleAddBook(c, uc) })
	authorized.GET("/books", func(c *gin.Context) { handleListBooks(c, uc) })
	authorized.DELETE("/books/:id", func(c *gin.Context) { handleRemoveBook(c, uc) })
	authorized.POST("/recognize", func(c *gin.Context) { handleRecognize(c, uc) })
	authorized.GET("/results/:id", func(c *gin.Context) { handleGetResult(c, uc) })
	authorized.GET("/metrics/summary", func(c *gin.Context) { handleMetrics(c, uc) })
}

func handleAddBook(c *gin.Context, uc *usecase.RecognitionUseCase) {
	bookID := c.PostForm("id")
	if bookID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	data, ok := readImagePart(c)
	if !ok {
		return
	}

	entry, err := uc.AddBook(c.Request.Context(), bookID, name, data)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrDuplicateID):
			c.JSON(http.StatusConflict, gin.H{"error": "book id already registered"})
		case errors.Is(err, usecase.ErrNoFeatures):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no features extracted from image"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"book_id":     entry.BookID,
		"name":        entry.Name,
		"descriptors": len(entry.Descriptors),
	})
}

func handleListBooks(c *gin.Context, uc *usecase.RecognitionUseCase) {
	entries := uc.ListBooks()
	books := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		books = append(books, gin.H{
			"book_id":     entry.BookID,
			"name":        entry.Name,
			"descriptors": len(entry.Descriptors),
		})
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func handleRemoveBook(c *gin.Context, uc *usecase.RecognitionUseCase) {
	bookID := c.Param("id")
	if err := uc.RemoveBook(c.Request.Context(), bookID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func handleRecognize(c *gin.Context, uc *usecase.RecognitionUseCase) {
	data, ok := readImagePart(c)
	if !ok {
		return
	}

	requestID, result, err := uc.Recognize(c.Request.Context(), data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	response := gin.H{
		"request_id":    requestID,
		"matched":       result.Matched,
		"score":         result.Score,
		"no_candidates": result.NoCandidates,
	}
	if result.Matched {
		response["book"] = gin.H{
			"book_id": result.Entry.BookID,
			"name":    result.Entry.Name,
		}
	}
	if c.Query("breakdown") == "true" {
		response["breakdown"] = result.Breakdown
	}
	c.JSON(http.StatusOK, response)
}

func handleGetResult(c *gin.Context, uc *usecase.RecognitionUseCase) {
	requestID := c.Param("id")
	log, err := uc.GetResult(c.Request.Context(), requestID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id":      log.RequestID,
		"matched":         log.Matched,
		"matched_book_id": log.MatchedBookID,
		"score":           log.Score,
		"details":         log.Details,
		"created_at":      log.CreatedAt,
	})
}

func handleMetrics(c *gin.Context, uc *usecase.RecognitionUseCase) {
	summary, err := uc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// readImagePart validates and reads the uploaded cover image. On failure it
// writes the error response and returns ok=false.
func readImagePart(c *gin.Context) ([]byte, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return nil, false
	}

	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return nil, false
	}

	if !allowedContentType(file) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only image/jpeg and image/png are supported"})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return nil, false
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return nil, false
	}
	return data, true
}

func allowedContentType(file *multipart.FileHeader) bool {
	contentType := file.Header.Get("Content-Type")
	return allowedContentTypes[contentType]
}
