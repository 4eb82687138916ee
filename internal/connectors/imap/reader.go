// Package imap reads the newest inbox message for the "latest email" lookup.
package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Message is the decoded slice of an email the assistant reports.
type Message struct {
	From    string
	Subject string
	Date    time.Time
	Body    string
}

type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	Mailbox       string
	TLSSkipVerify bool
}

type Reader struct {
	cfg    Config
	logger *slog.Logger

	fetchLatest func(ctx context.Context) (Message, error)
}

func New(cfg Config, logger *slog.Logger) *Reader {
	if cfg.Port < 1 {
		cfg.Port = 993
	}
	if strings.TrimSpace(cfg.Mailbox) == "" {
		cfg.Mailbox = "INBOX"
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reader{
		cfg:    cfg,
		logger: logger.With("component", "imap"),
	}
	r.fetchLatest = r.fetchLatestFromIMAP
	return r
}

// Enabled reports whether credentials are configured.
func (r *Reader) Enabled() bool {
	return strings.TrimSpace(r.cfg.Host) != "" &&
		strings.TrimSpace(r.cfg.Username) != "" &&
		r.cfg.Password != ""
}

// LatestMessage returns the newest message in the mailbox.
func (r *Reader) LatestMessage(ctx context.Context) (Message, error) {
	if !r.Enabled() {
		return Message{}, fmt.Errorf("imap credentials missing")
	}
	message, err := r.fetchLatest(ctx)
	if err != nil {
		return Message{}, err
	}
	r.logger.Debug("latest mail fetched", "subject", message.Subject)
	return message, nil
}

func (r *Reader) fetchLatestFromIMAP(ctx context.Context) (Message, error) {
	clientInstance, err := r.openClient(ctx)
	if err != nil {
		return Message{}, err
	}
	defer clientInstance.Logout()

	mailboxStatus, err := clientInstance.Select(r.cfg.Mailbox, true)
	if err != nil {
		return Message{}, fmt.Errorf("imap select mailbox: %w", err)
	}
	if mailboxStatus.Messages == 0 {
		return Message{}, fmt.Errorf("mailbox %s is empty", r.cfg.Mailbox)
	}

	set := new(goimap.SeqSet)
	set.AddNum(mailboxStatus.Messages)
	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{
		goimap.FetchEnvelope,
		section.FetchItem(),
	}
	messages := make(chan *goimap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- clientInstance.Fetch(set, items, messages)
	}()

	var result Message
	for fetched := range messages {
		if fetched.Envelope != nil {
			result.Subject = strings.TrimSpace(fetched.Envelope.Subject)
			result.Date = fetched.Envelope.Date
			result.From = formatAddresses(fetched.Envelope.From)
		}
		if bodyReader := fetched.GetBody(section); bodyReader != nil {
			if raw, readErr := readLimited(bodyReader, 2<<20); readErr == nil {
				result.Body = decodeBody(raw)
			}
		}
	}
	if err := <-done; err != nil {
		return Message{}, fmt.Errorf("imap fetch latest: %w", err)
	}
	return result, nil
}

func (r *Reader) openClient(ctx context.Context) (*client.Client, error) {
	address := strings.TrimSpace(r.cfg.Host) + ":" + strconv.Itoa(r.cfg.Port)
	tlsConfig := &tls.Config{
		ServerName:         r.cfg.Host,
		InsecureSkipVerify: r.cfg.TLSSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	clientInstance, err := client.DialTLS(address, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}
	select {
	case <-ctx.Done():
		clientInstance.Logout()
		return nil, ctx.Err()
	default:
	}
	if err := clientInstance.Login(r.cfg.Username, r.cfg.Password); err != nil {
		clientInstance.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return clientInstance, nil
}

// decodeBody extracts readable text from a raw RFC822 message, preferring
// text/plain parts.
func decodeBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	mediaType, params, _ := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	bodyBytes, err := readLimited(parsed.Body, 2<<20)
	if err != nil {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(mediaType), "multipart/") {
		return parseMultipartBody(bodyBytes, params["boundary"])
	}
	if decoded, decodeErr := decodeTransferEncoding(bytes.NewReader(bodyBytes), parsed.Header.Get("Content-Transfer-Encoding")); decodeErr == nil {
		bodyBytes = decoded
	}
	if strings.EqualFold(mediaType, "text/html") {
		return stripHTML(string(bodyBytes))
	}
	return strings.TrimSpace(string(bodyBytes))
}

func parseMultipartBody(raw []byte, boundary string) string {
	if strings.TrimSpace(boundary) == "" {
		return strings.TrimSpace(string(raw))
	}
	reader := multipart.NewReader(bytes.NewReader(raw), boundary)
	var plainParts, htmlParts []string
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		data, readErr := readLimited(part, 2<<20)
		if readErr != nil {
			continue
		}
		if decoded, decodeErr := decodeTransferEncoding(bytes.NewReader(data), part.Header.Get("Content-Transfer-Encoding")); decodeErr == nil {
			data = decoded
		}
		mediaType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		switch strings.ToLower(strings.TrimSpace(mediaType)) {
		case "text/plain":
			if text := strings.TrimSpace(string(data)); text != "" {
				plainParts = append(plainParts, text)
			}
		case "text/html":
			if text := strings.TrimSpace(string(data)); text != "" {
				htmlParts = append(htmlParts, text)
			}
		}
	}
	if len(plainParts) > 0 {
		return strings.Join(plainParts, "\n\n")
	}
	if len(htmlParts) > 0 {
		return stripHTML(strings.Join(htmlParts, "\n\n"))
	}
	return strings.TrimSpace(string(raw))
}

func decodeTransferEncoding(reader io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return readLimited(base64.NewDecoder(base64.StdEncoding, reader), 2<<20)
	case "quoted-printable":
		return readLimited(quotedprintable.NewReader(reader), 2<<20)
	default:
		return readLimited(reader, 2<<20)
	}
}

func formatAddresses(items []*goimap.Address) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		address := strings.TrimSpace(item.MailboxName + "@" + item.HostName)
		if name := strings.TrimSpace(item.PersonalName); name != "" {
			parts = append(parts, name+" <"+address+">")
			continue
		}
		parts = append(parts, address)
	}
	return strings.Join(parts, ", ")
}

func readLimited(reader io.Reader, maxBytes int64) ([]byte, error) {
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("content exceeds max size")
	}
	return data, nil
}

var htmlTagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

func stripHTML(input string) string {
	text := htmlTagPattern.ReplaceAllString(input, " ")
	text = html.UnescapeString(text)
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}
