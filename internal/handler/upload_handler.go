package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"parcelhop/internal/middleware"
	"parcelhop/pkg/cloudinary"

	"github.com/gin-gonic/gin"
)

const maxHandoffPhotoBytes = 10 << 20

type UploadHandler struct {
	cloud  cloudinary.Client
	folder string
}

func NewUploadHandler(cloud cloudinary.Client, folder string) *UploadHandler {
	return &UploadHandler{cloud: cloud, folder: folder}
}

// UploadHandoffPhoto stores a proof-of-handoff photo. The returned URL is sent
// back as proof_photo_url when the deliverer submits the delivery code.
func (h *UploadHandler) UploadHandoffPhoto(c *gin.Context) {
	if h.cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads are not configured"})
		return
	}
	userID := middleware.GetUserID(c)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	if file.Size > maxHandoffPhotoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	if ct := file.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only images are accepted"})
		return
	}
	folder := h.folder + "/" + strconv.FormatUint(uint64(userID), 10)
	publicID := "handoff_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer f.Close()

	url, thumb, err := h.cloud.UploadImage(c.Request.Context(), f, folder, publicID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "thumbnail_url": thumb})
}
