package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"piiquante/internal/middleware"
	"piiquante/internal/services"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// multipart overhead allowed on top of the image limit
	formOverhead    = 1 << 20
	multipartMemory = 8 << 20
)

type SauceHandler struct {
	catalog *services.SauceCatalog
	baseURL string
	maxBody int64
}

func NewSauceHandler(catalog *services.SauceCatalog, baseURL string, maxImageBytes int64) *SauceHandler {
	return &SauceHandler{catalog: catalog, baseURL: baseURL, maxBody: maxImageBytes + formOverhead}
}

// List handles GET /api/sauces.
func (h *SauceHandler) List(c *gin.Context) {
	sauces, err := h.catalog.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sauces)
}

// Get handles GET /api/sauces/:id.
func (h *SauceHandler) Get(c *gin.Context) {
	sauce, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sauce)
}

// Create handles POST /api/sauces: a multipart form with the sauce as a JSON
// string in "sauce" and the file in "image".
func (h *SauceHandler) Create(c *gin.Context) {
	in, upload, err := h.readMultipart(c)
	if err != nil {
		respondError(c, err)
		return
	}
	sauce, err := h.catalog.Create(c.Request.Context(), middleware.CallerID(c), in, upload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "sauce saved", "sauce": sauce})
}

// Update handles PUT /api/sauces/:id. The body is either plain JSON or the
// same multipart form Create takes when the image changes.
func (h *SauceHandler) Update(c *gin.Context) {
	var (
		in     services.SauceInput
		upload services.Upload
		err    error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		in, upload, err = h.readMultipart(c)
	} else if bindErr := c.ShouldBindJSON(&in); bindErr != nil {
		err = fmt.Errorf("%w: invalid sauce body", services.ErrValidation)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	sauce, err := h.catalog.Update(c.Request.Context(), middleware.CallerID(c), c.Param("id"), in, upload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sauce updated", "sauce": sauce})
}

// Delete handles DELETE /api/sauces/:id.
func (h *SauceHandler) Delete(c *gin.Context) {
	if err := h.catalog.Delete(c.Request.Context(), middleware.CallerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sauce deleted"})
}

// readMultipart reads the "sauce" JSON field and the optional "image" file.
func (h *SauceHandler) readMultipart(c *gin.Context) (services.SauceInput, services.Upload, error) {
	var in services.SauceInput
	upload := services.Upload{BaseURL: publicBaseURL(c, h.baseURL)}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, upload, fmt.Errorf("%w: request body too large", services.ErrValidation)
		}
		return in, upload, fmt.Errorf("%w: invalid multipart form", services.ErrValidation)
	}
	raw, ok := c.GetPostForm("sauce")
	if !ok {
		return in, upload, fmt.Errorf("%w: sauce field is required", services.ErrValidation)
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return in, upload, fmt.Errorf("%w: sauce is not valid JSON", services.ErrValidation)
	}

	fh, err := c.FormFile("image")
	switch {
	case err == nil:
		upload.File = fh
	case errors.Is(err, http.ErrMissingFile):
	default:
		return in, upload, fmt.Errorf("%w: unreadable image", services.ErrValidation)
	}
	return in, upload, nil
}
