package controllers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/portfolio-chat-api/models"
	"github.com/kendall-kelly/portfolio-chat-api/services"
	"github.com/kendall-kelly/portfolio-chat-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func multipartRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func useLocalAttachments(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	services.SetAttachmentService(services.NewLocalAttachmentService(tmpDir))
	t.Cleanup(func() { services.SetAttachmentService(nil) })
	return tmpDir
}

func TestUploadChatFile_Image(t *testing.T) {
	tmpDir := useLocalAttachments(t)

	router := setupTestRouter()
	router.POST("/chat/upload", UploadChatFile)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/chat/upload", "Holiday Photo.PNG", pngSignature))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result services.UploadResult
	decodeJSON(t, w.Body.Bytes(), &result)

	assert.Equal(t, models.FileTypeImage, result.FileType)
	assert.Equal(t, "Holiday Photo.PNG", result.OriginalName)
	assert.Equal(t, int64(len(pngSignature)), result.FileSize)
	assert.True(t, strings.HasPrefix(result.Filename, "chat-"))
	assert.True(t, strings.HasSuffix(result.Filename, ".png"))
	assert.Equal(t, utils.FileURLPrefix+result.Filename, result.URL)

	stored, err := os.ReadFile(filepath.Join(tmpDir, result.Filename))
	require.NoError(t, err)
	assert.Equal(t, pngSignature, stored)
}

func TestUploadChatFile_GenericFile(t *testing.T) {
	useLocalAttachments(t)

	router := setupTestRouter()
	router.POST("/chat/upload", UploadChatFile)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/chat/upload", "notes.txt", []byte("plain text notes")))

	require.Equal(t, http.StatusCreated, w.Code)
	var result services.UploadResult
	decodeJSON(t, w.Body.Bytes(), &result)
	assert.Equal(t, models.FileTypeFile, result.FileType)
}

func TestUploadChatFile_DeclaredTypeIsIgnored(t *testing.T) {
	useLocalAttachments(t)

	router := setupTestRouter()
	router.POST("/chat/upload", UploadChatFile)

	// A text file renamed to .png is still a generic file
	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/chat/upload", "fake.png", []byte("definitely not an image")))

	require.Equal(t, http.StatusCreated, w.Code)
	var result services.UploadResult
	decodeJSON(t, w.Body.Bytes(), &result)
	assert.Equal(t, models.FileTypeFile, result.FileType)
}

func TestUploadChatFile_MissingFile(t *testing.T) {
	useLocalAttachments(t)

	router := setupTestRouter()
	router.POST("/chat/upload", UploadChatFile)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/chat/upload", "", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FILE", errorCode(t, w.Body.Bytes()))
}

func TestUploadChatFile_EmptyFile(t *testing.T) {
	useLocalAttachments(t)

	router := setupTestRouter()
	router.POST("/chat/upload", UploadChatFile)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/chat/upload", "empty.txt", []byte{}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_FILE", errorCode(t, w.Body.Bytes()))
}

func TestUploadChatFile_S3Backend(t *testing.T) {
	mockS3 := services.NewMockS3Service()
	services.SetAttachmentService(services.NewS3AttachmentService(mockS3))
	defer services.SetAttachmentService(nil)

	router := setupTestRouter()
	router.POST("/chat/upload", UploadChatFile)
	router.GET("/uploads/chat/:filename", GetUploadedFile)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/chat/upload", "photo.png", pngSignature))
	require.Equal(t, http.StatusCreated, w.Code)

	var result services.UploadResult
	decodeJSON(t, w.Body.Bytes(), &result)
	key := services.S3KeyPrefix + result.Filename
	assert.True(t, mockS3.FileExists(key))
	assert.Equal(t, "image/png", mockS3.ContentType(key))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/chat/"+result.Filename, nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), key)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/chat/chat-1718000000000-1a2b3c4d.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "FILE_NOT_FOUND", errorCode(t, w.Body.Bytes()))
}

func TestGetUploadedFile_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tmpDir := useLocalAttachments(t)

	testContent := []byte("fake attachment content")
	testFilename := "chat-1718000000000-1a2b3c4d.txt"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, testFilename), testContent, 0644))

	router := gin.New()
	router.GET("/uploads/chat/:filename", GetUploadedFile)

	req := httptest.NewRequest(http.MethodGet, "/uploads/chat/"+testFilename, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
	assert.Equal(t, testContent, w.Body.Bytes())
}

func TestGetUploadedFile_FileNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	useLocalAttachments(t)

	router := gin.New()
	router.GET("/uploads/chat/:filename", GetUploadedFile)

	req := httptest.NewRequest(http.MethodGet, "/uploads/chat/nonexistent.png", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "FILE_NOT_FOUND")
}

func TestGetUploadedFile_DirectoryTraversal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	useLocalAttachments(t)

	router := gin.New()
	router.GET("/uploads/chat/:filename", GetUploadedFile)

	testCases := []struct {
		name           string
		filename       string
		expectedStatus int
		expectedError  string
	}{
		// Gin's router treats slashes as path separators, so these never match the route
		{"Parent directory traversal", "../../../etc/passwd", http.StatusNotFound, ""},
		{"Forward slash in filename", "path/to/file.png", http.StatusNotFound, ""},

		{"Backslash in filename", "path\\to\\file.png", http.StatusBadRequest, "INVALID_FILENAME"},
		{"Dots in filename", "..file.png", http.StatusBadRequest, "INVALID_FILENAME"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/uploads/chat/"+tc.filename, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedError != "" {
				assert.Contains(t, w.Body.String(), tc.expectedError)
			}
		})
	}
}
