package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/kendall-kelly/portfolio-chat-api/models"
	"github.com/kendall-kelly/portfolio-chat-api/utils"
)

// S3KeyPrefix is the folder inside the bucket that holds chat attachments
const S3KeyPrefix = "chat/"

// ErrFileNotFound is returned by Locate for unknown or unsafe filenames
var ErrFileNotFound = errors.New("file not found")

// UploadResult describes a stored attachment. The fields map onto the
// attachment fields of a message.
type UploadResult struct {
	URL          string          `json:"url"`
	Filename     string          `json:"filename"`
	OriginalName string          `json:"originalName"`
	FileType     models.FileType `json:"fileType"`
	FileSize     int64           `json:"fileSize"`
}

// StoredFile tells the download handler where an attachment lives. Exactly
// one of Path and RedirectURL is set.
type StoredFile struct {
	Path        string
	RedirectURL string
}

// AttachmentService stores chat attachments and resolves them for download
type AttachmentService interface {
	Upload(ctx context.Context, fileHeader *multipart.FileHeader) (*UploadResult, error)
	Locate(ctx context.Context, filename string) (*StoredFile, error)
}

var attachmentServiceInstance AttachmentService

// GetAttachmentService returns the initialized attachment service instance
func GetAttachmentService() AttachmentService {
	return attachmentServiceInstance
}

// SetAttachmentService sets the attachment service instance (primarily for testing)
func SetAttachmentService(service AttachmentService) {
	attachmentServiceInstance = service
}

// prepareUpload validates the file and derives everything except the storage step
func prepareUpload(fileHeader *multipart.FileHeader) (*UploadResult, string, error) {
	if err := utils.ValidateAttachment(fileHeader); err != nil {
		return nil, "", err
	}

	contentType, fileType, err := utils.DetectFileType(fileHeader)
	if err != nil {
		return nil, "", err
	}

	filename := utils.GenerateStoredFilename(fileHeader.Filename)
	return &UploadResult{
		URL:          utils.GetFileURL(filename),
		Filename:     filename,
		OriginalName: filepath.Base(fileHeader.Filename),
		FileType:     fileType,
		FileSize:     fileHeader.Size,
	}, contentType, nil
}

// LocalAttachmentService keeps attachments on the local filesystem
type LocalAttachmentService struct {
	dir string
}

// NewLocalAttachmentService stores attachments under dir, or utils.UploadDir when dir is empty
func NewLocalAttachmentService(dir string) *LocalAttachmentService {
	if dir == "" {
		dir = utils.UploadDir
	}
	return &LocalAttachmentService{dir: dir}
}

// Upload validates and writes the file to the upload directory
func (s *LocalAttachmentService) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (*UploadResult, error) {
	result, contentType, err := prepareUpload(fileHeader)
	if err != nil {
		return nil, err
	}

	if err := utils.SaveUploadedFile(fileHeader, s.dir, result.Filename); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "attachment stored",
		"filename", result.Filename,
		"content_type", contentType,
		"size", result.FileSize)
	return result, nil
}

// Locate returns the on-disk path of a stored attachment
func (s *LocalAttachmentService) Locate(_ context.Context, filename string) (*StoredFile, error) {
	if !utils.IsSafeFilename(filename) {
		return nil, ErrFileNotFound
	}

	path := filepath.Join(s.dir, filename)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, ErrFileNotFound
	}

	return &StoredFile{Path: path}, nil
}

// S3AttachmentService keeps attachments in an S3 bucket and serves them via presigned URLs
type S3AttachmentService struct {
	s3 S3Interface
}

// NewS3AttachmentService stores attachments through the given S3 client
func NewS3AttachmentService(s3 S3Interface) *S3AttachmentService {
	return &S3AttachmentService{s3: s3}
}

// Upload validates and uploads the file to the bucket
func (s *S3AttachmentService) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (*UploadResult, error) {
	result, contentType, err := prepareUpload(fileHeader)
	if err != nil {
		return nil, err
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			slog.WarnContext(ctx, "failed to close uploaded file", "error", closeErr)
		}
	}()

	if err := s.s3.UploadFile(ctx, S3KeyPrefix+result.Filename, src, contentType); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "attachment uploaded to s3",
		"filename", result.Filename,
		"content_type", contentType,
		"size", result.FileSize)
	return result, nil
}

// Locate presigns a download URL for the stored attachment
func (s *S3AttachmentService) Locate(ctx context.Context, filename string) (*StoredFile, error) {
	if !utils.IsSafeFilename(filename) {
		return nil, ErrFileNotFound
	}

	key := S3KeyPrefix + filename
	exists, err := s.s3.ObjectExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrFileNotFound
	}

	url, err := s.s3.GetPresignedURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &StoredFile{RedirectURL: url}, nil
}
