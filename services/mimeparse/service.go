package mimeparse

import (
	"context"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
	"github.com/mailvault/mailvault/internal/utils"
)

// Service parses raw RFC 5322 messages into the structured shape the cache
// coordinator works with.
type Service struct {
	log logger.Logger
}

func NewService(log logger.Logger) *Service {
	return &Service{log: log}
}

func (s *Service) Parse(ctx context.Context, raw string) (*models.ParsedMessage, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "mimeparse.Service.Parse")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	envelope, err := enmime.ReadEnvelope(strings.NewReader(raw))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "parsing MIME envelope")
	}

	parsed := &models.ParsedMessage{
		HTML:    envelope.HTML,
		Text:    envelope.Text,
		Subject: utils.DecodeMIMEHeader(envelope.GetHeader("Subject")),
	}

	if from, err := envelope.AddressList("From"); err == nil && len(from) > 0 {
		parsed.FromName = from[0].Name
		parsed.FromAddress = from[0].Address
	}

	for _, att := range envelope.Attachments {
		parsed.Attachments = append(parsed.Attachments, models.Attachment{
			FileName:    att.FileName,
			ContentType: att.ContentType,
			Size:        int64(len(att.Content)),
			ContentID:   att.ContentID,
		})
	}
	for _, inline := range envelope.Inlines {
		if inline.FileName == "" && inline.ContentID == "" {
			continue
		}
		parsed.Attachments = append(parsed.Attachments, models.Attachment{
			FileName:    inline.FileName,
			ContentType: inline.ContentType,
			Size:        int64(len(inline.Content)),
			ContentID:   inline.ContentID,
			Inline:      true,
		})
	}

	return parsed, nil
}
