package whatsapp

// Status is the lifecycle state of an organization's WhatsApp session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusQR           Status = "qr"
	StatusConnecting   Status = "connecting"
	StatusReady        Status = "ready"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDisconnected, StatusQR, StatusConnecting, StatusReady:
		return true
	}
	return false
}

// Session is the registry's view of one organization's session.
type Session struct {
	OrgID       string `json:"orgId"`
	Status      Status `json:"status"`
	QRCode      string `json:"qrCode,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	PushName    string `json:"pushname,omitempty"`
	Platform    string `json:"platform,omitempty"`
}

// InboundMessage is the message payload the session bridge posts back.
type InboundMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	Timestamp int64     `json:"timestamp"`
	Type      string    `json:"type"`
	HasMedia  bool      `json:"hasMedia"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	MimeType  string    `json:"mimetype,omitempty"`
	FileName  string    `json:"filename,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	PushName  string    `json:"pushname,omitempty"`
	Location  *Location `json:"location,omitempty"`
	Contact   *Contact  `json:"contact,omitempty"`
}

// Location is a shared map point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Contact is a shared contact card.
type Contact struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

type sendRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type sendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type sessionResponse struct {
	Success     bool   `json:"success"`
	Status      Status `json:"status"`
	QRCode      string `json:"qrCode,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	PushName    string `json:"pushname,omitempty"`
	Error       string `json:"error,omitempty"`
}
