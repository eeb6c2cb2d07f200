package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() *Message {
	return &Message{
		From:    mail.Address{Name: "Issues Map", Address: "moderator@example.com"},
		To:      []mail.Address{{Name: "City Council", Address: "council@example.com"}},
		Cc:      []mail.Address{{Address: "citizen@example.com"}},
		Subject: "Issue report 12-1",
		Body:    "Please find the report attached.\n\nThis email has been sent automatically from https://issues.example.com.",
	}
}

var testConfig = Config{Host: "smtp.example.com", Port: 587}

type leaf struct {
	contentType string
	filename    string
	data        []byte
}

// leaves flattens a MIME tree into its non-multipart parts.
func leaves(t *testing.T, contentType string, body io.Reader, encoding string) []leaf {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)

	if !strings.HasPrefix(mediaType, "multipart/") {
		if strings.EqualFold(encoding, "base64") {
			body = base64.NewDecoder(base64.StdEncoding, body)
		}
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		return []leaf{{contentType: mediaType, data: data}}
	}

	var out []leaf
	mr := multipart.NewReader(body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		found := leaves(t, p.Header.Get("Content-Type"), p, p.Header.Get("Content-Transfer-Encoding"))
		if name := p.FileName(); name != "" && len(found) == 1 {
			found[0].filename = name
		}
		out = append(out, found...)
	}
}

func parse(t *testing.T, raw []byte) (*mail.Message, []leaf) {
	t.Helper()
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	ct := msg.Header.Get("Content-Type")
	if ct == "" {
		ct = "text/plain"
	}
	return msg, leaves(t, ct, msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
}

func TestBuild_Headers(t *testing.T) {
	raw, err := Build(testConfig, testMessage())
	require.NoError(t, err)

	msg, parts := parse(t, raw)

	from, err := mail.ParseAddress(msg.Header.Get("From"))
	require.NoError(t, err)
	assert.Equal(t, "Issues Map", from.Name)
	assert.Equal(t, "moderator@example.com", from.Address)
	assert.Contains(t, msg.Header.Get("To"), "council@example.com")
	assert.Contains(t, msg.Header.Get("Cc"), "citizen@example.com")
	assert.Empty(t, msg.Header.Get("Reply-To"))

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Issue report 12-1", subject)

	var text string
	for _, p := range parts {
		if p.contentType == "text/plain" {
			text = strings.ReplaceAll(string(p.data), "\r\n", "\n")
		}
	}
	assert.Equal(t, testMessage().Body, text)
}

func TestBuild_WithAttachment(t *testing.T) {
	m := testMessage()
	pdf := []byte("%PDF-1.3 fake document body that is long enough to wrap across several base64 lines of output")
	m.Attachments = []Attachment{{Name: "12-1-abc.pdf", ContentType: "application/pdf", Data: pdf}}

	raw, err := Build(testConfig, m)
	require.NoError(t, err)

	_, parts := parse(t, raw)
	var att *leaf
	for i := range parts {
		if parts[i].filename == "12-1-abc.pdf" {
			att = &parts[i]
		}
	}
	require.NotNil(t, att, "attachment part present")
	assert.Equal(t, "application/pdf", att.contentType)
	assert.Equal(t, pdf, att.data)
}

func TestBuild_EnvelopeFromMovesSenderToReplyTo(t *testing.T) {
	cfg := testConfig
	cfg.EnvelopeFrom = "relay@issues.example.com"

	raw, err := Build(cfg, testMessage())
	require.NoError(t, err)

	msg, _ := parse(t, raw)
	from, err := mail.ParseAddress(msg.Header.Get("From"))
	require.NoError(t, err)
	assert.Equal(t, "relay@issues.example.com", from.Address)
	assert.Equal(t, "Issues Map", from.Name)
	assert.Contains(t, msg.Header.Get("Reply-To"), "moderator@example.com")
}

func TestBuild_EncodesNonASCIISubject(t *testing.T) {
	m := testMessage()
	m.Subject = "Ziņojums 12-1"
	raw, err := Build(testConfig, m)
	require.NoError(t, err)

	msg, _ := parse(t, raw)
	decoded, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Ziņojums 12-1", decoded)
}

func TestSend_NotConfigured(t *testing.T) {
	s := NewSender(Config{})
	assert.False(t, s.Enabled())
	assert.ErrorIs(t, s.Send(context.Background(), testMessage()), ErrNotConfigured)
}

func TestSend_NoRecipients(t *testing.T) {
	s := NewSender(testConfig)
	m := testMessage()
	m.To = nil
	assert.Error(t, s.Send(context.Background(), m))
}

func TestSend_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewSender(testConfig).Send(ctx, testMessage()), context.Canceled)
}
