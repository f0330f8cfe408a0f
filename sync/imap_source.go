// ABOUTME: IMAP-backed mail source for mailboxes without Gmail API access
// ABOUTME: Searches by header criteria, fetches raw messages, and walks MIME parts for CSV attachments
package sync

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	gosync "sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/harperreed/leadsync/models"
)

// maxAttachmentBytes caps how much of one MIME part is read into memory.
const maxAttachmentBytes = 25 << 20

// IMAPConfig holds connection settings.
type IMAPConfig struct {
	Addr     string
	Username string
	Password string
	// TLSConfig defaults to TLS 1.2+ with the host of Addr as server name.
	TLSConfig *tls.Config
}

// IMAPSource reads messages over IMAP. Message ids are UIDs in the
// selected mailbox; the connection is opened lazily and reused until Close.
type IMAPSource struct {
	cfg    IMAPConfig
	logger *zap.Logger

	mu      gosync.Mutex
	client  *imapclient.Client
	mailbox string
}

// NewIMAPSource validates cfg and returns an unconnected source.
func NewIMAPSource(cfg IMAPConfig, logger *zap.Logger) (*IMAPSource, error) {
	if cfg.Addr == "" {
		return nil, errors.New("imap addr is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("imap username/password is required")
	}
	if cfg.TLSConfig == nil {
		host := cfg.Addr
		if i := strings.LastIndex(host, ":"); i > 0 {
			host = host[:i]
		}
		cfg.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IMAPSource{cfg: cfg, logger: logger.Named("imap")}, nil
}

func (s *IMAPSource) connect() (*imapclient.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	c, err := imapclient.DialTLS(s.cfg.Addr, &imapclient.Options{
		TLSConfig: s.cfg.TLSConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	if err := c.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}

	s.client = c
	s.mailbox = ""
	return c, nil
}

func (s *IMAPSource) selectMailbox(c *imapclient.Client, mailbox string) error {
	if s.mailbox == mailbox {
		return nil
	}
	if _, err := c.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", mailbox, err)
	}
	s.mailbox = mailbox
	return nil
}

// drop discards a connection after a protocol error so the next call redials.
func (s *IMAPSource) drop() {
	if s.client != nil {
		_ = s.client.Close()
	}
	s.client = nil
	s.mailbox = ""
}

// mailboxFor maps a Gmail-style label onto an IMAP mailbox name.
func mailboxFor(label string) string {
	if label == "" || strings.EqualFold(label, "INBOX") {
		return "INBOX"
	}
	return label
}

func imapCriteria(c models.SearchCriteria) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	if c.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "From", Value: c.From})
	}
	if c.Subject != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "Subject", Value: c.Subject})
	}
	if !c.Since.IsZero() {
		criteria.Since = c.Since
	}
	return criteria
}

// Search returns matching UIDs in ascending order. IMAP cannot filter on
// attachments, so HasAttachment is applied later by the caller.
func (s *IMAPSource) Search(ctx context.Context, criteria models.SearchCriteria) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	if err := s.selectMailbox(c, mailboxFor(criteria.Label)); err != nil {
		s.drop()
		return nil, err
	}

	data, err := c.UIDSearch(imapCriteria(criteria), nil).Wait()
	if err != nil {
		s.drop()
		return nil, fmt.Errorf("imap uid search: %w", err)
	}

	uids := data.AllUIDs()
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}

	s.logger.Info("found matching messages", zap.String("mailbox", s.mailbox), zap.Int("count", len(ids)))
	return ids, nil
}

// FetchMessage downloads one message by UID without setting \Seen.
func (s *IMAPSource) FetchMessage(ctx context.Context, id string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid imap uid %q: %w", id, err)
	}
	uid := imap.UID(n)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	if s.mailbox == "" {
		if err := s.selectMailbox(c, "INBOX"); err != nil {
			s.drop()
			return nil, err
		}
	}

	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}

	fetchCmd := c.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodyAll},
	})

	var raw []byte
	var envelope *imap.Envelope
	for {
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			_ = fetchCmd.Close()
			s.drop()
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}
		if buf.UID == uid {
			raw = buf.FindBodySection(bodyAll)
			envelope = buf.Envelope
		}
	}
	if err := fetchCmd.Close(); err != nil {
		s.drop()
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}

	if raw == nil {
		return nil, fmt.Errorf("imap message %s not found", id)
	}

	msg, err := parseRFC822(raw)
	if err != nil {
		return nil, err
	}
	msg.ID = id

	if envelope != nil {
		if msg.Subject == "" {
			msg.Subject = envelope.Subject
		}
		if msg.Date.IsZero() {
			msg.Date = envelope.Date
		}
		if msg.From == "" && len(envelope.From) > 0 {
			msg.From = envelope.From[0].Addr()
		}
	}

	return msg, nil
}

// Close logs out and closes the connection, if any.
func (s *IMAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Warn("imap logout failed", zap.Error(err))
	}
	err := s.client.Close()
	s.client = nil
	s.mailbox = ""
	return err
}

// parseRFC822 walks a raw message's MIME tree. Attachment parts, and inline
// parts that carry a file name, become attachments; the first text/plain
// part is the body, with text/html converted as a fallback.
func parseRFC822(raw []byte) (*models.Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	msg := &models.Message{}
	msg.Subject, _ = mr.Header.Subject()
	msg.Date, _ = mr.Header.Date()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = formatAddress(from[0])
	}

	var plain, html string
	for parts := 0; parts < maxMessageParts; parts++ {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			if err := appendAttachment(msg, filename, ct, p.Body); err != nil {
				return nil, err
			}

		case *mail.InlineHeader:
			ct, params, _ := h.ContentType()
			if name := params["name"]; name != "" {
				if err := appendAttachment(msg, name, ct, p.Body); err != nil {
					return nil, err
				}
				continue
			}

			switch strings.ToLower(ct) {
			case "text/plain":
				if plain == "" {
					b, _ := io.ReadAll(io.LimitReader(p.Body, maxAttachmentBytes))
					plain = string(b)
				}
			case "text/html":
				if html == "" {
					b, _ := io.ReadAll(io.LimitReader(p.Body, maxAttachmentBytes))
					html = string(b)
				}
			}
		}
	}

	msg.BodyText = strings.TrimSpace(plain)
	if msg.BodyText == "" && html != "" {
		msg.BodyText = HTMLToText(html)
	}

	return msg, nil
}

func appendAttachment(msg *models.Message, filename, mimeType string, body io.Reader) error {
	att := models.Attachment{Filename: filename, MimeType: mimeType}
	if att.IsCSV() {
		data, err := io.ReadAll(io.LimitReader(body, maxAttachmentBytes))
		if err != nil {
			return fmt.Errorf("failed to read attachment %s: %w", filename, err)
		}
		att.Data = data
	}
	msg.Attachments = append(msg.Attachments, att)
	return nil
}

func formatAddress(a *mail.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}
