// internal/messaging/storage.go
// Attachment upload behind a narrow interface; S3 in production

package messaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// AttachmentStorage uploads attachment bytes and returns the stored record.
// File storage internals are out of scope here; this is the whole surface
// the messaging core consumes.
type AttachmentStorage interface {
	Upload(ctx context.Context, name string, r io.Reader) (*Attachment, error)
}

type s3Storage struct {
	client      *s3.S3
	bucket      string
	cdnURL      string
	maxFileSize int64
}

var allowedMimeTypes = map[string]string{
	"image/jpeg":      "image",
	"image/png":       "image",
	"image/gif":       "image",
	"image/webp":      "image",
	"video/mp4":       "video",
	"video/webm":      "video",
	"audio/mpeg":      "audio",
	"audio/wav":       "audio",
	"audio/ogg":       "audio",
	"application/pdf": "document",
	"application/zip": "document",
}

// NewS3Storage creates the S3-backed attachment store.
func NewS3Storage(awsSession *session.Session, bucket, cdnURL string, maxFileSize int64) AttachmentStorage {
	return &s3Storage{
		client:      s3.New(awsSession),
		bucket:      bucket,
		cdnURL:      cdnURL,
		maxFileSize: maxFileSize,
	}
}

func (s *s3Storage) Upload(ctx context.Context, name string, r io.Reader) (*Attachment, error) {
	buf := new(bytes.Buffer)
	size, err := io.Copy(buf, io.LimitReader(r, s.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if size > s.maxFileSize {
		return nil, fmt.Errorf("%w: attachment exceeds %d bytes", ErrValidation, s.maxFileSize)
	}

	mimeType := http.DetectContentType(buf.Bytes())
	attachmentType, ok := allowedMimeTypes[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: attachment type %s not allowed", ErrValidation, mimeType)
	}

	key := fmt.Sprintf("attachments/%s/%s%s",
		time.Now().UTC().Format("2006/01/02"),
		uuid.New().String(),
		filepath.Ext(name),
	)

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String(mimeType),
		ContentLength: aws.Int64(size),
		Metadata: map[string]*string{
			"file-name": aws.String(name),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to s3: %w", err)
	}

	return &Attachment{
		Name:     name,
		URL:      fmt.Sprintf("%s/%s", s.cdnURL, key),
		Type:     attachmentType,
		Size:     size,
		MimeType: mimeType,
	}, nil
}
