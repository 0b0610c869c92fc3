// Package bot routes Telegram webhook updates to the entitlement services.
package bot

// Update is the subset of a Telegram update the router understands
type Update struct {
	UpdateID         int64             `json:"update_id"`
	Message          *Message          `json:"message,omitempty"`
	PreCheckoutQuery *PreCheckoutQuery `json:"pre_checkout_query,omitempty"`
}

// Message is an incoming chat message
type Message struct {
	MessageID         int64              `json:"message_id"`
	From              *User              `json:"from,omitempty"`
	Chat              Chat               `json:"chat"`
	Date              int64              `json:"date"`
	Text              string             `json:"text,omitempty"`
	Caption           string             `json:"caption,omitempty"`
	Photo             []PhotoSize        `json:"photo,omitempty"`
	SuccessfulPayment *SuccessfulPayment `json:"successful_payment,omitempty"`
}

// User is a Telegram account
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Chat identifies where to reply
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// PhotoSize is one resolution of a sent photo
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// SuccessfulPayment is attached to the service message Telegram sends once
// a Stars invoice is paid. InvoicePayload carries "plan:<id>".
type SuccessfulPayment struct {
	Currency                string `json:"currency"`
	TotalAmount             int64  `json:"total_amount"`
	InvoicePayload          string `json:"invoice_payload"`
	TelegramPaymentChargeID string `json:"telegram_payment_charge_id"`
}

// PreCheckoutQuery must be answered before Telegram charges the user
type PreCheckoutQuery struct {
	ID             string `json:"id"`
	From           User   `json:"from"`
	Currency       string `json:"currency"`
	TotalAmount    int64  `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

// Reply is a Bot API call returned in the webhook response body
type Reply struct {
	Method             string `json:"method"`
	ChatID             int64  `json:"chat_id,omitempty"`
	Text               string `json:"text,omitempty"`
	PreCheckoutQueryID string `json:"pre_checkout_query_id,omitempty"`
	OK                 *bool  `json:"ok,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

// ChatID returns the chat an update belongs to, or 0
func (u *Update) ChatID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.Chat.ID
	case u.PreCheckoutQuery != nil:
		return u.PreCheckoutQuery.From.ID
	}
	return 0
}

// LargestPhoto returns the file id of the size with the most pixels.
// Ties keep the earliest entry.
func LargestPhoto(sizes []PhotoSize) string {
	best := -1
	var bestArea int64
	for i, s := range sizes {
		area := int64(s.Width) * int64(s.Height)
		if best < 0 || area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 {
		return ""
	}
	return sizes[best].FileID
}
