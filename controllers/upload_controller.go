package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/portfolio-chat-api/logging"
	"github.com/kendall-kelly/portfolio-chat-api/services"
	"github.com/kendall-kelly/portfolio-chat-api/utils"
)

// UploadChatFile handles POST /api/chat/upload - stores a chat attachment
func UploadChatFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, utils.MaxFileSize+1024*1024)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			errorResponse(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the 20 MB limit", nil)
			return
		}
		errorResponse(c, http.StatusBadRequest, "MISSING_FILE", "No file was uploaded", nil)
		return
	}

	result, err := services.GetAttachmentService().Upload(c.Request.Context(), fileHeader)
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			status := http.StatusBadRequest
			if uploadErr.Code == "FILE_TOO_LARGE" {
				status = http.StatusRequestEntityTooLarge
			}
			errorResponse(c, status, uploadErr.Code, uploadErr.Message, nil)
			return
		}

		logging.FromContext(c.Request.Context()).Error("attachment upload failed", logging.Err(err))
		errorResponse(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Failed to store the uploaded file", nil)
		return
	}

	c.PureJSON(http.StatusCreated, result)
}

// GetUploadedFile handles GET /api/uploads/chat/:filename - serves or redirects to a stored attachment
func GetUploadedFile(c *gin.Context) {
	filename := c.Param("filename")

	if !utils.IsSafeFilename(filename) {
		errorResponse(c, http.StatusBadRequest, "INVALID_FILENAME", "Invalid filename", nil)
		return
	}

	stored, err := services.GetAttachmentService().Locate(c.Request.Context(), filename)
	if err != nil {
		if errors.Is(err, services.ErrFileNotFound) {
			errorResponse(c, http.StatusNotFound, "FILE_NOT_FOUND", "File not found", nil)
			return
		}
		logging.FromContext(c.Request.Context()).Error("failed to locate attachment", logging.Err(err))
		errorResponse(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Failed to load file", nil)
		return
	}

	if stored.RedirectURL != "" {
		c.Redirect(http.StatusFound, stored.RedirectURL)
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.File(stored.Path)
}
