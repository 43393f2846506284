package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// FileSender writes each message to disk instead of sending it. Used in
// development so outbound email stays inspectable without a Postmark
// account.
type FileSender struct {
	dir string
}

// NewFileSender creates a sender dropping messages into dir. The
// directory is created on first send.
func NewFileSender(dir string) *FileSender {
	return &FileSender{dir: dir}
}

type droppedMessage struct {
	Timestamp string `json:"timestamp"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
}

// Send writes the message body as HTML plus a JSON metadata sidecar.
func (s *FileSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	now := time.Now()
	name := now.Format("2006_01_02_150405") + "_" + safeFilename(firstNonEmpty(msg.Tag, msg.Subject))

	if err := os.WriteFile(filepath.Join(s.dir, name+".html"), []byte(msg.BodyHTML), 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	meta, err := json.MarshalIndent(droppedMessage{
		Timestamp: now.Format(time.RFC3339),
		To:        msg.To,
		Subject:   msg.Subject,
		Tag:       msg.Tag,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name+".json"), meta, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func safeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	const maxLen = 100
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
