//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/brykin/letterdrop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchReport struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Failures  []struct {
		SubscriberID string `json:"subscriber_id"`
		Email        string `json:"email"`
		Reason       string `json:"reason"`
		Kind         string `json:"kind"`
	} `json:"failures"`
}

func issuePayload() map[string]interface{} {
	return map[string]interface{}{
		"title": "Issue #1",
		"content": map[string]string{
			"text": "The latest from Letterdrop.",
			"html": "<p>The latest from <b>Letterdrop</b>.</p>",
		},
	}
}

func TestPublishNewsletter_DeliversToConfirmedOnly(t *testing.T) {
	cleanupState(t)
	client := newTestClient(t)

	confirmedA := testutil.RandomEmail("confirmed-a")
	confirmedB := testutil.RandomEmail("confirmed-b")
	pending := testutil.RandomEmail("pending")

	subscribeAndConfirm(t, client, "Reader A", confirmedA)
	subscribeAndConfirm(t, client, "Reader B", confirmedB)
	subscribe(t, client, "Reader C", pending)

	// Drop the confirmation emails so the inbox only shows the issue.
	require.NoError(t, mailpitClient.DeleteAllMessages())

	resp, err := newPublisherClient(t).POST("/newsletters", issuePayload())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data dispatchReport `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	assert.Equal(t, 2, result.Data.Total)
	assert.Equal(t, 2, result.Data.Delivered)
	assert.Equal(t, 0, result.Data.Failed)

	messages, err := mailpitClient.WaitForMessages(2, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	recipients := make(map[string]bool)
	for _, msg := range messages {
		require.Len(t, msg.To, 1)
		recipients[msg.To[0].Address] = true
		assert.Equal(t, "Issue #1", msg.Subject)
	}
	assert.True(t, recipients[confirmedA])
	assert.True(t, recipients[confirmedB])
	assert.False(t, recipients[pending], "pending subscriber must not receive the issue")
}

func TestPublishNewsletter_IssueCarriesBothBodies(t *testing.T) {
	cleanupState(t)
	client := newTestClient(t)

	email := testutil.RandomEmail("bodies")
	subscribeAndConfirm(t, client, "Reader", email)
	require.NoError(t, mailpitClient.DeleteAllMessages())

	resp, err := newPublisherClient(t).POST("/newsletters", issuePayload())
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	messages, err := mailpitClient.WaitForMessages(1, 10*time.Second)
	require.NoError(t, err)

	msg, err := mailpitClient.GetMessageByID(messages[0].ID)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "The latest from Letterdrop.")
	assert.Contains(t, msg.HTML, "<b>Letterdrop</b>")
}

func TestPublishNewsletter_NoConfirmedSubscribers(t *testing.T) {
	cleanupState(t)
	client := newTestClient(t)

	// A pending subscriber alone does not trigger any delivery.
	subscribe(t, client, "Reader", testutil.RandomEmail("pending-only"))
	require.NoError(t, mailpitClient.DeleteAllMessages())

	resp, err := newPublisherClient(t).POST("/newsletters", issuePayload())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data dispatchReport `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	assert.Equal(t, 0, result.Data.Total)
	assert.Equal(t, 0, result.Data.Delivered)
	assert.Equal(t, 0, result.Data.Failed)

	messages, err := mailpitClient.GetMessages()
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestPublishNewsletter_RequiresAuth(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"no credentials", "", ""},
		{"wrong password", publisherUsername, "guess"},
		{"wrong username", "intruder", publisherPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t)
			if tt.username != "" || tt.password != "" {
				client = client.AsPublisher(tt.username, tt.password)
			}

			resp, err := client.POST("/newsletters", issuePayload())
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, `Basic realm="publish"`, resp.Header.Get("WWW-Authenticate"))
		})
	}
}

func TestPublishNewsletter_InvalidPayload(t *testing.T) {
	client := newPublisherClient(t)

	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"missing title", map[string]interface{}{
			"content": map[string]string{"text": "t", "html": "h"},
		}},
		{"missing text body", map[string]interface{}{
			"title":   "Issue",
			"content": map[string]string{"html": "h"},
		}},
		{"missing html body", map[string]interface{}{
			"title":   "Issue",
			"content": map[string]string{"text": "t"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.POST("/newsletters", tt.payload)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}
