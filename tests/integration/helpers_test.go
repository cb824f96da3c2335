//go:build integration

package integration

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/brykin/letterdrop/internal/testutil"
	"github.com/stretchr/testify/require"
)

// cleanupState truncates subscriber data and clears the Mailpit inbox so
// tests start from a known-empty world.
func cleanupState(t *testing.T) {
	t.Helper()

	_, err := testDB.Exec(context.Background(), "TRUNCATE confirmation_tokens, subscribers")
	require.NoError(t, err)
	require.NoError(t, mailpitClient.DeleteAllMessages())
}

// subscribe signs email up and asserts the pending response.
func subscribe(t *testing.T, client *testutil.Client, name, email string) {
	t.Helper()

	resp, err := client.POST("/subscriptions", map[string]string{
		"name":  name,
		"email": email,
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

var confirmationTokenRe = regexp.MustCompile(`/subscriptions/confirm\?token=([A-Za-z0-9]+)`)

// confirmationTokenFromEmail waits for the confirmation email addressed
// to email and extracts the token from the embedded link.
func confirmationTokenFromEmail(t *testing.T, email string) string {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		messages, err := mailpitClient.SearchByRecipient(email)
		require.NoError(t, err)

		if len(messages) > 0 {
			msg, err := mailpitClient.GetMessageByID(messages[0].ID)
			require.NoError(t, err)

			match := confirmationTokenRe.FindStringSubmatch(msg.Text)
			require.NotNil(t, match, "confirmation email for %s carries no token link:\n%s", email, msg.Text)
			return match[1]
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("no confirmation email received for %s", email)
	return ""
}

// confirmSubscription follows the confirmation link through the API.
func confirmSubscription(t *testing.T, client *testutil.Client, token string) {
	t.Helper()

	resp, err := client.GET("/subscriptions/confirm?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// subscribeAndConfirm runs the full signup flow for a fresh subscriber.
func subscribeAndConfirm(t *testing.T, client *testutil.Client, name, email string) {
	t.Helper()

	subscribe(t, client, name, email)
	token := confirmationTokenFromEmail(t, email)
	confirmSubscription(t, client, token)
}

// subscriberStatus reads the stored status for an email directly from
// the database.
func subscriberStatus(t *testing.T, email string) string {
	t.Helper()

	var status string
	err := testDB.QueryRow(context.Background(),
		"SELECT status FROM subscribers WHERE email = $1 ORDER BY subscribed_at DESC LIMIT 1",
		email,
	).Scan(&status)
	require.NoError(t, err)
	return status
}
