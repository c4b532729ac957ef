package docsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrDocumentNotFound reports a document id the source has no text for.
var ErrDocumentNotFound = errors.New("document not found")

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client fetches extracted document text from the PDF service.
type Client struct {
	config ClientConfig
	client *resty.Client
}

type documentResponse struct {
	ExtractedText string `json:"extracted_text"`
}

func NewWithConfig(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://pdf_service:8000"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout)

	return &Client{
		config: config,
		client: client,
	}
}

// GetText returns the extracted text for a document, or
// ErrDocumentNotFound when the source does not know the id.
func (c *Client) GetText(ctx context.Context, documentID string) (string, error) {
	var doc documentResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&doc).
		Get(fmt.Sprintf("/pdf/documents/%s", documentID))
	if err != nil {
		return "", fmt.Errorf("failed to fetch document %s: %w", documentID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", ErrDocumentNotFound
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to fetch document %s: %s", documentID, resp.Status())
	}

	return doc.ExtractedText, nil
}
