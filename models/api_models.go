package models

import (
	"encoding/json"
	"fmt"
)

// APIError is the JSON body of every failed JSON response.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CancelSubscriptionResponse is returned by the subscription canceller.
type CancelSubscriptionResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CancelAtPeriodEnd int64  `json:"cancel_at_period_end"`
}

// PortalLinkResponse carries the hosted billing portal URL.
type PortalLinkResponse struct {
	URL string `json:"url"`
}

// MessageResponse is a plain confirmation body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ConnectResponse is returned by the mock connector.
type ConnectResponse struct {
	Message   string `json:"message"`
	Connected bool   `json:"connected"`
}

// SyncAction names one of the CRM sync operations.
type SyncAction string

const (
	SyncActionInvoiceUpsert SyncAction = "invoice_upsert"
	SyncActionReminderLog   SyncAction = "reminder_log"
	SyncActionInvoicePaid   SyncAction = "invoice_paid"
	SyncActionFullSync      SyncAction = "full_sync"
)

// SyncRequest is the body of a CRM sync call.
type SyncRequest struct {
	Action  SyncAction  `json:"action" validate:"required"`
	Payload SyncPayload `json:"payload"`
}

type SyncPayload struct {
	Client   *ClientPayload   `json:"client"`
	Invoice  *InvoicePayload  `json:"invoice"`
	Reminder *ReminderPayload `json:"reminder"`
}

type ClientPayload struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

type InvoicePayload struct {
	ID     Text `json:"id"`
	Number Text `json:"number"`
	// Amount is kept as sent, usually a float64 or a string.
	Amount      any    `json:"amount"`
	DueDate     string `json:"dueDate"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// Text is a JSON string or number, kept as its literal text.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		*t = Text(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or a number: %w", err)
	}

	*t = Text(n.String())

	return nil
}

type ReminderPayload struct {
	Note    string `json:"note"`
	Channel string `json:"channel"`
}

// SyncResult is the body of a successful sync call.
type SyncResult struct {
	ContactID string `json:"contactId,omitempty"`
	DealID    string `json:"dealId,omitempty"`
	Message   string `json:"message,omitempty"`
}
