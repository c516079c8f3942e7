package rasterizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ServiceEngine delegates rendering to the raster service over HTTP
type ServiceEngine struct {
	BaseURL    string
	HTTPClient *http.Client
}

// ImageResponse represents the response from the raster service
type ImageResponse struct {
	Image  string `json:"image"` // base64 encoded PNG
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewServiceEngine(baseURL string, timeout time.Duration) *ServiceEngine {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ServiceEngine{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (e *ServiceEngine) Name() string { return "service" }

// Render sends the page to /pdf/to-image and writes the returned PNG to outPath
func (e *ServiceEngine) Render(ctx context.Context, srcPDF, outPath string, dpi float64) error {
	file, err := os.Open(srcPDF)
	if err != nil {
		return fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("pdf", filepath.Base(srcPDF))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy file data: %w", err)
	}
	if err := writer.WriteField("dpi", strconv.FormatFloat(dpi, 'f', -1, 64)); err != nil {
		return fmt.Errorf("failed to write dpi field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}

	url := fmt.Sprintf("%s/pdf/to-image", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call raster service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("raster service returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var imgResp ImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&imgResp); err != nil {
		return fmt.Errorf("failed to decode raster service response: %w", err)
	}
	if imgResp.Error != "" {
		return fmt.Errorf("raster service error: %s", imgResp.Error)
	}

	imageData, err := base64.StdEncoding.DecodeString(imgResp.Image)
	if err != nil {
		return fmt.Errorf("failed to decode base64 image: %w", err)
	}
	if err := os.WriteFile(outPath, imageData, 0644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	return nil
}

func (e *ServiceEngine) Close() error {
	e.HTTPClient.CloseIdleConnections()
	return nil
}
