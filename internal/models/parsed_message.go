package models

// ParsedMessage is the structured result of parsing a raw MIME message.
type ParsedMessage struct {
	HTML        string
	Text        string
	Subject     string
	FromName    string
	FromAddress string
	Attachments AttachmentList
}

// BestBody returns the HTML part when present, falling back to the plain
// text part wrapped in nothing; callers sanitize before rendering.
func (p *ParsedMessage) BestBody() string {
	if p.HTML != "" {
		return p.HTML
	}
	return p.Text
}
