package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrArchiveDisabled is returned when no bucket is configured.
var ErrArchiveDisabled = errors.New("archive storage not configured")

// S3Config locates an S3-compatible bucket. Endpoint is optional and enables MinIO and friends.
type S3Config struct {
	Bucket     string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	PresignTTL time.Duration
}

// Archived describes a stored document.
type Archived struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Archiver stores documents and hands out time-limited download links.
type Archiver interface {
	Archive(ctx context.Context, key string, doc Document) (Archived, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type getPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Archiver writes documents to a bucket and presigns GET requests for them.
type S3Archiver struct {
	bucket  string
	ttl     time.Duration
	now     func() time.Time
	put     objectPutter
	presign getPresigner
}

// NewS3Archiver builds an archiver from static credentials, or the default AWS chain when none are
// given.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, ErrArchiveDisabled
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archiver(cfg, client, s3.NewPresignClient(client)), nil
}

func newS3Archiver(cfg S3Config, put objectPutter, presign getPresigner) *S3Archiver {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3Archiver{bucket: cfg.Bucket, ttl: ttl, now: time.Now, put: put, presign: presign}
}

func (a *S3Archiver) Archive(ctx context.Context, key string, doc Document) (Archived, error) {
	_, err := a.put.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(a.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(doc.Body),
		ContentType:        aws.String(doc.ContentType),
		ContentDisposition: aws.String(`attachment; filename="` + doc.Name + `"`),
	})
	if err != nil {
		return Archived{}, fmt.Errorf("put object %s: %w", key, err)
	}
	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.ttl))
	if err != nil {
		return Archived{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return Archived{Key: key, URL: req.URL, ExpiresAt: a.now().UTC().Add(a.ttl)}, nil
}

// ArchiveKey is the object key a checklist export is stored under.
func ArchiveKey(ownerID, checklistID string) string {
	return "checklists/" + ownerID + "/" + FileName(checklistID)
}
