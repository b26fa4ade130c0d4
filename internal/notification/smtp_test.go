package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func TestTLSPolicyFromEncryption(t *testing.T) {
	assert.Equal(t, mail.TLSMandatory, tlsPolicyFromEncryption("ssl_tls"))
	assert.Equal(t, mail.TLSOpportunistic, tlsPolicyFromEncryption("starttls"))
	assert.Equal(t, mail.NoTLS, tlsPolicyFromEncryption("none"))
	assert.Equal(t, mail.NoTLS, tlsPolicyFromEncryption(""))
}

func TestBuildMessage(t *testing.T) {
	m, err := buildMessage("notifier@example.com", Message{
		To:      Recipient{Address: "a@x.com", Name: "Alice"},
		Subject: "Vote closed",
		Body:    "The vote has closed.",
	})
	require.NoError(t, err)

	rcpts, err := m.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"<a@x.com>"}, rcpts)

	to := m.GetAddrHeader(mail.HeaderTo)
	require.Len(t, to, 1)
	assert.Equal(t, "a@x.com", to[0].Address)
	assert.Equal(t, "Alice", to[0].Name)
	assert.Equal(t, []string{"Vote closed"}, m.GetGenHeader(mail.HeaderSubject))
}

func TestBuildMessage_DefaultSubjectAndInvalidAddresses(t *testing.T) {
	m, err := buildMessage("notifier@example.com", Message{To: Recipient{Address: "a@x.com"}})
	require.NoError(t, err)
	assert.Equal(t, []string{defaultSubject}, m.GetGenHeader(mail.HeaderSubject))

	_, err = buildMessage("not an address", Message{To: Recipient{Address: "a@x.com"}})
	assert.ErrorContains(t, err, "invalid from address")

	_, err = buildMessage("notifier@example.com", Message{To: Recipient{Address: "@@"}})
	assert.ErrorContains(t, err, "invalid recipient")
}

func TestBuildEmailHTML_EscapesContent(t *testing.T) {
	html, err := buildEmailHTML("Hi", "<b>Bob</b>", "a < b")
	require.NoError(t, err)
	assert.Contains(t, html, "Hello &lt;b&gt;Bob&lt;/b&gt;,")
	assert.Contains(t, html, "a &lt; b")
	assert.False(t, strings.Contains(html, "<b>Bob</b>"))
}

func TestSMTPTransport_Open(t *testing.T) {
	t.Run("missing host", func(t *testing.T) {
		_, err := NewSMTPTransport(SMTPConfig{}).Open(context.Background())
		assert.ErrorContains(t, err, "not configured")
	})

	t.Run("unreachable server", func(t *testing.T) {
		tr := NewSMTPTransport(SMTPConfig{
			Host:     "127.0.0.1",
			Port:     1, // nothing listens here
			FromAddr: "from@example.com",
			Timeout:  time.Second,
		})
		assert.Equal(t, "smtp", tr.Name())
		_, err := tr.Open(context.Background())
		assert.Error(t, err)
	})
}
