package dto

import "time"

// RemoteAddress is a participant in a remote message payload.
type RemoteAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// RemoteMessage is one item of a remote folder page. Labels and From may be
// omitted by the server; the sync engine backfills them from local records.
type RemoteMessage struct {
	ID            string          `json:"id"`
	UID           uint32          `json:"uid,omitempty"`
	MessageID     string          `json:"messageId,omitempty"`
	Folder        string          `json:"folder"`
	Subject       string          `json:"subject"`
	From          *RemoteAddress  `json:"from,omitempty"`
	To            []RemoteAddress `json:"to,omitempty"`
	Cc            []RemoteAddress `json:"cc,omitempty"`
	Flags         []string        `json:"flags,omitempty"`
	Labels        []string        `json:"labels,omitempty"`
	HasAttachment bool            `json:"hasAttachment"`
	Date          *time.Time      `json:"date,omitempty"`
}

// RemoteMessagePage is the remote answer to a folder page request.
type RemoteMessagePage struct {
	Messages []RemoteMessage `json:"messages"`
	Total    int64           `json:"total"`
}

// RemoteFolder is one folder of the remote folder listing.
type RemoteFolder struct {
	Path string `json:"path"`
	Name string `json:"name"`
}
