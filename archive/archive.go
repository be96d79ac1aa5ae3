// Package archive copies finalized results to S3.
//
// Objects are written as JSON under
//
//	<prefix>/results/YYYY/MM/DD/<eventID>.json
//
// dated by the finalization time, with S3-managed server-side encryption.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/xraph/verity/plugin"
	"github.com/xraph/verity/result"
)

var (
	_ plugin.Plugin              = (*Archiver)(nil)
	_ plugin.OnResultFinalized   = (*Archiver)(nil)
	_ plugin.OnResultInvalidated = (*Archiver)(nil)
)

// Uploader is the slice of *manager.Uploader the archiver needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Record is the archived object body.
type Record struct {
	EventID     string            `json:"event_id"`
	ProducerID  string            `json:"producer_id"`
	Submitter   string            `json:"submitter"`
	Status      result.Status     `json:"status"`
	Fingerprint string            `json:"fingerprint"`
	DecodeHint  string            `json:"decode_hint,omitempty"`
	Schema      string            `json:"schema,omitempty"`
	QuickFields map[string]string `json:"quick_fields,omitempty"`
	Payload     []byte            `json:"payload"`
	SubmittedAt time.Time         `json:"submitted_at"`
	FinalizedAt *time.Time        `json:"finalized_at,omitempty"`
}

// Archiver is a plugin that uploads every finalized result. Invalidated
// results are archived too when WithInvalidated is set.
type Archiver struct {
	up          Uploader
	bucket      string
	prefix      string
	invalidated bool
	logger      *slog.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option { return func(a *Archiver) { a.prefix = prefix } }

// WithInvalidated also archives results overturned by a dispute.
func WithInvalidated() Option { return func(a *Archiver) { a.invalidated = true } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Archiver) { a.logger = l } }

// New creates an archiver uploading to bucket through up.
func New(up Uploader, bucket string, opts ...Option) (*Archiver, error) {
	if bucket == "" {
		return nil, errors.New("archive: bucket required")
	}
	a := &Archiver{up: up, bucket: bucket, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewS3 creates an archiver using the default AWS credential chain
// (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID and friends).
func NewS3(ctx context.Context, bucket string, opts ...Option) (*Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	return New(manager.NewUploader(s3.NewFromConfig(cfg)), bucket, opts...)
}

func (a *Archiver) Name() string { return "s3-archive" }

func (a *Archiver) OnResultFinalized(ctx context.Context, r *result.Result) error {
	a.upload(ctx, r)
	return nil
}

func (a *Archiver) OnResultInvalidated(ctx context.Context, r *result.Result) error {
	if a.invalidated {
		a.upload(ctx, r)
	}
	return nil
}

// Key returns the object key for r.
func (a *Archiver) Key(r *result.Result) string {
	ts := r.SubmittedAt
	if r.FinalizedAt != nil {
		ts = *r.FinalizedAt
	}
	ts = ts.UTC()
	return path.Join(a.prefix, "results",
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		fmt.Sprintf("%02d", ts.Day()),
		r.EventID.String()+".json",
	)
}

func (a *Archiver) upload(ctx context.Context, r *result.Result) {
	key := a.Key(r)
	body, err := json.Marshal(Record{
		EventID:     r.EventID.String(),
		ProducerID:  r.ProducerID.String(),
		Submitter:   string(r.Submitter),
		Status:      r.Status,
		Fingerprint: r.Fingerprint,
		DecodeHint:  r.DecodeHint,
		Schema:      r.Schema,
		QuickFields: r.QuickFields,
		Payload:     r.Payload,
		SubmittedAt: r.SubmittedAt,
		FinalizedAt: r.FinalizedAt,
	})
	if err != nil {
		a.logger.Warn("archive: marshal failed", "event_id", r.EventID, "error", err)
		return
	}

	_, err = a.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
		Metadata: map[string]string{
			"fingerprint": r.Fingerprint,
			"status":      string(r.Status),
		},
	})
	if err != nil {
		a.logger.Warn("archive: upload failed",
			"event_id", r.EventID,
			"key", key,
			"error", err,
		)
		return
	}
	a.logger.Debug("archive: result uploaded", "event_id", r.EventID, "key", key)
}
