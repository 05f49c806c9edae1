package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/models"
	jsoniter "github.com/json-iterator/go"
)

const defaultClientTimeout = 2 * time.Minute

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionAPI is the server side of the upload protocol as seen by the coordinator.
type SessionAPI interface {
	CreateSession(ctx context.Context, req models.CreateMultipartRequest) (models.CreateMultipartResponse, error)
	CompleteSession(ctx context.Context, req models.CompleteMultipartRequest) (models.CompleteMultipartResponse, error)
	AbortSession(ctx context.Context, req models.AbortMultipartRequest) error
}

// Client talks to the uploads API and PUTs chunks to presigned URLs.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) CreateSession(ctx context.Context, req models.CreateMultipartRequest) (models.CreateMultipartResponse, error) {
	var resp models.CreateMultipartResponse
	err := c.do(ctx, http.MethodPost, "/files/create-multipart", req, &resp)
	return resp, err
}

func (c *Client) CompleteSession(ctx context.Context, req models.CompleteMultipartRequest) (models.CompleteMultipartResponse, error) {
	var resp models.CompleteMultipartResponse
	err := c.do(ctx, http.MethodPost, "/files/complete-multipart", req, &resp)
	return resp, err
}

func (c *Client) AbortSession(ctx context.Context, req models.AbortMultipartRequest) error {
	return c.do(ctx, http.MethodPost, "/files/abort-multipart", req, nil)
}

type ListedFile struct {
	Name        string    `json:"file_name"`
	Size        int64     `json:"file_size"`
	S3Key       string    `json:"s3Key"`
	UploadDate  time.Time `json:"uploadDate"`
	DownloadURL string    `json:"downloadUrl"`
}

func (c *Client) ListFiles(ctx context.Context) ([]ListedFile, error) {
	var files []ListedFile
	if err := c.do(ctx, http.MethodGet, "/files", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// PutChunk sends data to a presigned part URL and returns its ETag header.
func (c *Client) PutChunk(ctx context.Context, url string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build chunk request: %w", err)
	}
	req.ContentLength = int64(len(data))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("put chunk: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("put chunk: unexpected status %d", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", fmt.Errorf("put chunk: response has no ETag header")
	}
	return etag, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
