// Package imagehost uploads rendered artifacts to the content-addressed image
// host that serves them to Telegram clients.
package imagehost

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"
)

const defaultTimeout = 30 * time.Second

// Image is the host's record of one uploaded still image.
type Image struct {
	// ID is the content-hash identifier.
	ID       string `json:"id"`
	Link     string `json:"link"`
	ThumbURL string `json:"thumb"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Animation is the host's record of one uploaded MP4 animation.
type Animation struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

// Option mutates image host client configuration.
type Option func(*Client)

// WithTimeout bounds one upload.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.timeout = timeout
		}
	}
}

// Client uploads artifacts.
type Client struct {
	timeout time.Duration
	http    *resty.Client
}

// New creates an upload client for baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("new image host client: base url is required")
	}

	client := &Client{timeout: defaultTimeout}
	for _, option := range options {
		option(client)
	}
	client.http = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(client.timeout)

	return client, nil
}

// Close releases HTTP resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// UploadImage uploads a still image as multipart field "image".
func (c *Client) UploadImage(ctx context.Context, image []byte) (Image, error) {
	var uploaded Image
	if err := c.upload(ctx, "/image", "image", "image.png", image, &uploaded); err != nil {
		return Image{}, err
	}
	if uploaded.ID == "" || uploaded.Link == "" {
		return Image{}, fmt.Errorf("upload image: incomplete response")
	}

	return uploaded, nil
}

// UploadAnimation uploads an MP4 animation as multipart field "animation".
func (c *Client) UploadAnimation(ctx context.Context, animation []byte) (Animation, error) {
	var uploaded Animation
	if err := c.upload(ctx, "/animation", "animation", "animation.mp4", animation, &uploaded); err != nil {
		return Animation{}, err
	}
	if uploaded.ID == "" || uploaded.Link == "" {
		return Animation{}, fmt.Errorf("upload animation: incomplete response")
	}

	return uploaded, nil
}

func (c *Client) upload(ctx context.Context, path, field, fileName string, content []byte, result any) error {
	if len(content) == 0 {
		return fmt.Errorf("upload %s: empty content", field)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader(field, fileName, bytes.NewReader(content)).
		SetResult(result).
		Post(path)
	if err != nil {
		return fmt.Errorf("upload %s: %w", field, err)
	}
	if resp.IsError() {
		return fmt.Errorf("upload %s: status %d", field, resp.StatusCode())
	}

	return nil
}
