package dto

// RemoteAttachment describes one attachment of a remote detail payload.
type RemoteAttachment struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	ContentID   string `json:"contentId,omitempty"`
	Inline      bool   `json:"inline,omitempty"`
}

// RemoteMessageDetail is the remote answer to a single-message detail
// request. Encrypted payloads carry the raw source instead of a rendered
// body.
type RemoteMessageDetail struct {
	Encrypted   bool               `json:"encrypted"`
	RawSource   string             `json:"rawSource,omitempty"`
	Body        string             `json:"body,omitempty"`
	TextContent string             `json:"textContent,omitempty"`
	Attachments []RemoteAttachment `json:"attachments,omitempty"`
}
