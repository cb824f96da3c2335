//go:build integration

package integration

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/brykin/letterdrop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribe_SendsConfirmationEmail(t *testing.T) {
	cleanupState(t)
	client := newTestClient(t)

	email := testutil.RandomEmail("ursula")
	subscribe(t, client, "Ursula Le Guin", email)

	assert.Equal(t, "pending_confirmation", subscriberStatus(t, email))

	messages, err := mailpitClient.WaitForMessages(1, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	msg, err := mailpitClient.GetMessageByID(messages[0].ID)
	require.NoError(t, err)

	require.Len(t, msg.To, 1)
	assert.Equal(t, email, msg.To[0].Address)
	assert.Equal(t, "Confirm your subscription", msg.Subject)
	assert.Contains(t, msg.Text, "/subscriptions/confirm?token=")
	assert.Contains(t, msg.HTML, "/subscriptions/confirm?token=")
}

func TestSubscribe_FormEncoded(t *testing.T) {
	cleanupState(t)
	client := newTestClient(t)

	email := testutil.RandomEmail("form")
	form := url.Values{}
	form.Set("name", "Ursula Le Guin")
	form.Set("email", email)

	resp, err := client.POSTForm("/subscriptions", form)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending_confirmation", subscriberStatus(t, email))
}

func TestSubscribe_InvalidInput(t *testing.T) {
	cleanupState(t)
	client := newTestClient(t)

	tests := []struct {
		name    string
		payload map[string]string
	}{
		{"missing email", map[string]string{"name": "Ursula Le Guin"}},
		{"missing name", map[string]string{"email": "ursula@example.com"}},
		{"invalid email", map[string]string{"name": "Ursula", "email": "definitely-not-an-email"}},
		{"forbidden characters in name", map[string]string{"name": "<script>", "email": "ursula@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.POST("/subscriptions", tt.payload)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	// Nothing was stored and no email left the building.
	count, err := mailpitClient.GetMessages()
	require.NoError(t, err)
	assert.Empty(t, count)
}

func TestSubscribeAndConfirm_EndToEnd(t *testing.T) {
	cleanupState(t)
	client := newTestClient(t)

	email := testutil.RandomEmail("confirmed")
	subscribe(t, client, "Ursula Le Guin", email)
	token := confirmationTokenFromEmail(t, email)

	confirmSubscription(t, client, token)

	assert.Equal(t, "confirmed", subscriberStatus(t, email))
}

func TestConfirm_Idempotent(t *testing.T) {
	cleanupState(t)
	client := newTestClient(t)

	email := testutil.RandomEmail("twice")
	subscribe(t, client, "Ursula Le Guin", email)
	token := confirmationTokenFromEmail(t, email)

	confirmSubscription(t, client, token)
	confirmSubscription(t, client, token)

	assert.Equal(t, "confirmed", subscriberStatus(t, email))
}

func TestConfirm_UnknownToken(t *testing.T) {
	client := newTestClient(t)

	tests := []struct {
		name  string
		query string
	}{
		{"missing token", ""},
		{"never issued", "?token=AAAAAAAAAAAAAAAAAAAAAAAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.GET("/subscriptions/confirm" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestResubscribe_BeforeConfirmationIssuesFreshToken(t *testing.T) {
	cleanupState(t)
	client := newTestClient(t)

	email := testutil.RandomEmail("again")
	subscribe(t, client, "Ursula Le Guin", email)
	subscribe(t, client, "Ursula Le Guin", email)

	messages, err := mailpitClient.WaitForMessages(2, 10*time.Second)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}
