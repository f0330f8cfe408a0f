// ABOUTME: Google Drive exporter for fallback and archive CSV files
// ABOUTME: Uploads file bytes as text/csv, optionally into a parent folder
package sync

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// DriveExporter uploads files to Drive.
type DriveExporter struct {
	service  *drive.Service
	folderID string
	logger   *zap.Logger
}

// NewDriveExporter uploads into folderID, or the Drive root when it is empty.
func NewDriveExporter(service *drive.Service, folderID string, logger *zap.Logger) *DriveExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriveExporter{service: service, folderID: folderID, logger: logger.Named("drive")}
}

// Export uploads data as name and returns the new file id.
func (e *DriveExporter) Export(ctx context.Context, name string, data []byte) (string, error) {
	file := &drive.File{
		Name:     name,
		MimeType: "text/csv",
	}
	if e.folderID != "" {
		file.Parents = []string{e.folderID}
	}

	created, err := e.service.Files.Create(file).
		Media(bytes.NewReader(data), googleapi.ContentType("text/csv")).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}

	e.logger.Info("uploaded file",
		zap.String("name", name),
		zap.String("id", created.Id),
		zap.String("link", created.WebViewLink))
	return created.Id, nil
}
