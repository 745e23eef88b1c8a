package utils

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/kendall-kelly/portfolio-chat-api/models"
)

const (
	// MaxFileSize is 20MB in bytes
	MaxFileSize = 20 * 1024 * 1024
	// FileURLPrefix is the route that serves stored chat attachments
	FileURLPrefix = "/api/uploads/chat/"
)

var (
	// UploadDir is the directory where uploaded files are stored
	// Can be overridden for testing
	UploadDir = "./uploads/chat"
)

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateAttachment checks the uploaded file's name and size
func ValidateAttachment(fileHeader *multipart.FileHeader) error {
	if fileHeader == nil || fileHeader.Filename == "" {
		return &FileUploadError{
			Code:    "MISSING_FILE",
			Message: "No file was uploaded",
		}
	}

	if fileHeader.Size > MaxFileSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}

	if fileHeader.Size <= 0 {
		return &FileUploadError{
			Code:    "EMPTY_FILE",
			Message: "Uploaded file is empty",
		}
	}

	return nil
}

// DetectFileType sniffs the file content and classifies it as an image or a
// generic file. The declared Content-Type header is ignored.
func DetectFileType(fileHeader *multipart.FileHeader) (string, models.FileType, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return "", "", fmt.Errorf("failed to detect file type: %w", err)
	}

	contentType := mtype.String()
	if strings.HasPrefix(contentType, "image/") {
		return contentType, models.FileTypeImage, nil
	}
	return contentType, models.FileTypeFile, nil
}

// GenerateStoredFilename builds a collision-free name that keeps the
// original extension, e.g. chat-1718000000000-1a2b3c4d.png
func GenerateStoredFilename(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	return fmt.Sprintf("chat-%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], ext)
}

// IsSafeFilename rejects names that could escape the upload directory
func IsSafeFilename(filename string) bool {
	if filename == "" || filename == "." {
		return false
	}
	return !strings.Contains(filename, "..") &&
		!strings.Contains(filename, "/") &&
		!strings.Contains(filename, "\\")
}

// SaveUploadedFile saves the uploaded file under uploadDir with the given name
func SaveUploadedFile(fileHeader *multipart.FileHeader, uploadDir, filename string) (err error) {
	if !IsSafeFilename(filename) {
		return fmt.Errorf("invalid stored filename %q", filename)
	}

	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			slog.Warn("failed to close source file", "error", closeErr)
		}
	}()

	dst, err := os.Create(filepath.Join(uploadDir, filename))
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}

	return nil
}

// GetFileURL returns the URL path for accessing a stored attachment
func GetFileURL(filename string) string {
	if filename == "" {
		return ""
	}
	return FileURLPrefix + filename
}
