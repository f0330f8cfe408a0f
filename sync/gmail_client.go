// ABOUTME: Google API service construction for Gmail, Sheets, and Drive
// ABOUTME: Creates authenticated services from a shared OAuth HTTP client
package sync

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// NewGmailClient creates a new Google Gmail API client.
func NewGmailClient(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*gmail.Service, error) {
	if client == nil {
		return nil, fmt.Errorf("http client cannot be nil")
	}

	service, err := gmail.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return service, nil
}

// NewSheetsClient creates a new Google Sheets API client.
func NewSheetsClient(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*sheets.Service, error) {
	if client == nil {
		return nil, fmt.Errorf("http client cannot be nil")
	}

	service, err := sheets.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	return service, nil
}

// NewDriveClient creates a new Google Drive API client.
func NewDriveClient(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*drive.Service, error) {
	if client == nil {
		return nil, fmt.Errorf("http client cannot be nil")
	}

	service, err := drive.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return service, nil
}
