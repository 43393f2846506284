package jobqueue

// Job payloads form a tagged union keyed by JobType: each variant carries
// the data its messaging-channel send operation needs.

// OTPPayload is the payload for JobTypeSendOTP.
type OTPPayload struct {
	Recipient string `json:"recipient"`
	Code      string `json:"code"`
	Purpose   string `json:"purpose,omitempty"`
}

// NotificationPayload is the payload for JobTypeSendNotification.
type NotificationPayload struct {
	UserID  string         `json:"user_id"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// GroupPayload is the payload for JobTypeSendGroup: one message addressed
// to every holder of a role.
type GroupPayload struct {
	Role    string         `json:"role"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// BulkPayload is the payload for JobTypeSendBulk.
type BulkPayload struct {
	UserIDs []string       `json:"user_ids"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}
