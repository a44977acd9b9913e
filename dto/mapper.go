package dto

import (
	"strings"

	"github.com/mailvault/mailvault/internal/models"
)

// ToModel converts a remote page item into the local metadata record.
func (r RemoteMessage) ToModel(accountID string) models.Message {
	msg := models.Message{
		ID:            r.ID,
		AccountID:     accountID,
		Folder:        r.Folder,
		UID:           r.UID,
		MessageID:     r.MessageID,
		Subject:       r.Subject,
		Flags:         models.StringList(r.Flags),
		Labels:        models.StringList(r.Labels),
		HasAttachment: r.HasAttachment,
		SentAt:        r.Date,
	}
	if r.From != nil {
		msg.FromName = r.From.Name
		msg.FromAddress = r.From.Address
	}
	for _, addr := range r.To {
		msg.ToAddresses = append(msg.ToAddresses, addr.Address)
	}
	for _, addr := range r.Cc {
		msg.CcAddresses = append(msg.CcAddresses, addr.Address)
	}
	return msg
}

// ToModel converts a remote folder entry into the local folder record.
// Counts stay zero; they are derived from the local message set.
func (r RemoteFolder) ToModel(accountID string) models.Folder {
	name := r.Name
	if name == "" {
		parts := strings.Split(r.Path, "/")
		name = parts[len(parts)-1]
	}
	return models.Folder{
		AccountID: accountID,
		Path:      r.Path,
		Name:      name,
		Depth:     strings.Count(r.Path, "/"),
	}
}

// ToAttachmentList converts remote attachment entries into the stored form.
func ToAttachmentList(remote []RemoteAttachment) models.AttachmentList {
	if len(remote) == 0 {
		return nil
	}
	list := make(models.AttachmentList, 0, len(remote))
	for _, att := range remote {
		list = append(list, models.Attachment{
			FileName:    att.FileName,
			ContentType: att.ContentType,
			Size:        att.Size,
			ContentID:   att.ContentID,
			Inline:      att.Inline,
		})
	}
	return list
}
