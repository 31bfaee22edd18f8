package domain

import "time"

// Notification is the ticket message handed to the notifier after a successful payment.
type Notification struct {
	ID        string    `json:"id"`
	BookingID int64     `json:"bookingId"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
