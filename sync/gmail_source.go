// ABOUTME: Gmail-backed mail source for lead attachments
// ABOUTME: Builds search queries, pages message ids, and extracts CSV attachments and body text
package sync

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"

	"github.com/harperreed/leadsync/models"
)

const (
	gmailUser       = "me"
	maxGmailResults = 500 // Gmail API max per page

	// maxMessageParts bounds the MIME walk of a single message.
	maxMessageParts = 1000
)

// GmailSource searches and fetches messages through the Gmail API.
type GmailSource struct {
	service *gmail.Service
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGmailSource wraps service. A nil limiter disables pacing.
func NewGmailSource(service *gmail.Service, limiter *rate.Limiter, logger *zap.Logger) *GmailSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GmailSource{service: service, limiter: limiter, logger: logger.Named("gmail")}
}

// BuildLeadQuery renders criteria as a Gmail search query, e.g.
// `label:INBOX from:reports@example.com subject:"New Leads" has:attachment after:1759226400`.
func BuildLeadQuery(c models.SearchCriteria) string {
	label := c.Label
	if label == "" {
		label = "INBOX"
	}

	parts := []string{"label:" + quoteQueryTerm(label)}
	if c.From != "" {
		parts = append(parts, "from:"+quoteQueryTerm(c.From))
	}
	if c.Subject != "" {
		parts = append(parts, "subject:"+quoteQueryTerm(c.Subject))
	}
	if c.HasAttachment {
		parts = append(parts, "has:attachment")
	}
	if !c.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", c.Since.Unix()))
	}

	return strings.Join(parts, " ")
}

func quoteQueryTerm(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + strings.ReplaceAll(s, `"`, "") + `"`
	}
	return s
}

func (s *GmailSource) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// Search returns the ids of every message matching criteria, across pages.
func (s *GmailSource) Search(ctx context.Context, criteria models.SearchCriteria) ([]string, error) {
	query := BuildLeadQuery(criteria)
	s.logger.Info("searching messages", zap.String("query", query))

	var ids []string
	pageToken := ""

	for {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}

		call := s.service.Users.Messages.List(gmailUser).
			Q(query).
			MaxResults(maxGmailResults).
			Context(ctx)

		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		response, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to fetch messages: %w", err)
		}

		for _, msgRef := range response.Messages {
			ids = append(ids, msgRef.Id)
		}

		pageToken = response.NextPageToken
		if pageToken == "" {
			break
		}
	}

	s.logger.Info("found matching messages", zap.Int("count", len(ids)))
	return ids, nil
}

// FetchMessage loads a message with its CSV attachment bytes. Attachments
// of other types are listed without data.
func (s *GmailSource) FetchMessage(ctx context.Context, id string) (*models.Message, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	message, err := s.service.Users.Messages.Get(gmailUser, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}

	headers := parseHeaders(message.Payload)
	msg := &models.Message{
		ID:      message.Id,
		From:    headers["from"],
		Subject: headers["subject"],
	}
	if message.InternalDate > 0 {
		msg.Date = time.UnixMilli(message.InternalDate)
	}

	var plain, html string
	var walkErr error

	walkParts(message.Payload, func(part *gmail.MessagePart) bool {
		if part.Filename != "" {
			att := models.Attachment{Filename: part.Filename, MimeType: part.MimeType}
			if att.IsCSV() {
				data, err := s.attachmentData(ctx, message.Id, part)
				if err != nil {
					walkErr = err
					return false
				}
				att.Data = data
			}
			msg.Attachments = append(msg.Attachments, att)
			return true
		}

		if part.Body == nil || part.Body.Data == "" {
			return true
		}
		switch strings.ToLower(part.MimeType) {
		case "text/plain":
			if plain == "" {
				if b, err := decodeBase64URL(part.Body.Data); err == nil {
					plain = string(b)
				}
			}
		case "text/html":
			if html == "" {
				if b, err := decodeBase64URL(part.Body.Data); err == nil {
					html = string(b)
				}
			}
		}
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	msg.BodyText = strings.TrimSpace(plain)
	if msg.BodyText == "" && html != "" {
		msg.BodyText = HTMLToText(html)
	}

	return msg, nil
}

func (s *GmailSource) attachmentData(ctx context.Context, messageID string, part *gmail.MessagePart) ([]byte, error) {
	if part.Body == nil {
		return nil, nil
	}
	if part.Body.AttachmentId == "" {
		return decodeBase64URL(part.Body.Data)
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	body, err := s.service.Users.Messages.Attachments.Get(gmailUser, messageID, part.Body.AttachmentId).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment %s: %w", part.Filename, err)
	}

	data, err := decodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %s: %w", part.Filename, err)
	}
	return data, nil
}

// walkParts visits root and its descendants depth-first in document order
// using an explicit stack. visit returns false to stop the walk.
func walkParts(root *gmail.MessagePart, visit func(*gmail.MessagePart) bool) {
	if root == nil {
		return
	}

	stack := []*gmail.MessagePart{root}
	visited := 0

	for len(stack) > 0 && visited < maxMessageParts {
		part := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++

		if !visit(part) {
			return
		}

		for i := len(part.Parts) - 1; i >= 0; i-- {
			if part.Parts[i] != nil {
				stack = append(stack, part.Parts[i])
			}
		}
	}
}

// parseHeaders returns the part's headers keyed by lower-cased name. The
// first occurrence wins.
func parseHeaders(part *gmail.MessagePart) map[string]string {
	headers := make(map[string]string)
	if part == nil {
		return headers
	}
	for _, h := range part.Headers {
		key := strings.ToLower(h.Name)
		if _, ok := headers[key]; !ok {
			headers[key] = h.Value
		}
	}
	return headers
}

// decodeBase64URL decodes Gmail's URL-safe base64, padded or not.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
