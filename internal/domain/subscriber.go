// Package domain contains the core entities of the newsletter service.
package domain

import "time"

// SubscriberStatus is the lifecycle state of a subscriber.
type SubscriberStatus string

// Subscriber statuses. The only legal transition is
// pending_confirmation -> confirmed; a confirmed subscriber never reverts.
const (
	StatusPendingConfirmation SubscriberStatus = "pending_confirmation"
	StatusConfirmed           SubscriberStatus = "confirmed"
)

// Subscriber represents one newsletter recipient.
type Subscriber struct {
	ID           string
	Email        EmailAddress
	Name         SubscriberName
	Status       SubscriberStatus
	SubscribedAt time.Time
}

// ConfirmationToken links a confirmation credential to a subscriber.
// Several tokens may reference the same subscriber over time; each one
// resolves to exactly one subscriber.
type ConfirmationToken struct {
	Token        string
	SubscriberID string
	CreatedAt    time.Time
}

// NewsletterIssue is the content of a single publish request.
// Issues are not persisted; they exist only for the duration of a dispatch.
type NewsletterIssue struct {
	Title    string
	TextBody string
	HTMLBody string
}
