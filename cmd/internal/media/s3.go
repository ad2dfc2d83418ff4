package media

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// putObjectAPI is the subset of *s3.Client used by S3Store.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads images to an S3-compatible bucket (AWS S3, MinIO).
type S3Store struct {
	client        putObjectAPI
	bucket        string
	region        string
	endpoint      string
	pathStyle     bool
	publicBaseURL string
	prefix        string
	now           func() time.Time
}

// NewS3Store builds an S3 client from cfg and returns a Store bound to cfg.S3Bucket.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.S3Bucket) == "" {
		return nil, fmt.Errorf("media: empty s3 bucket")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client putObjectAPI, cfg Config) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        cfg.S3Bucket,
		region:        cfg.S3Region,
		endpoint:      strings.TrimRight(cfg.S3Endpoint, "/"),
		pathStyle:     cfg.S3PathStyle,
		publicBaseURL: cfg.S3PublicBaseURL,
		prefix:        "images",
		now:           time.Now,
	}
}

func (s *S3Store) Upload(ctx context.Context, localPath string) (string, error) {
	if strings.TrimSpace(localPath) == "" {
		return "", ErrEmptyPath
	}
	defer removeStaged(localPath)

	f, err := os.Open(localPath) // #nosec G304 -- path comes from our own staging dir.
	if err != nil {
		return "", fmt.Errorf("media: open staged file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("media: stat staged file: %w", err)
	}

	key := objectKey(s.prefix, localPath, s.now().UTC())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(st.Size()),
		ContentType:   aws.String(contentType(f)),
	})
	if err != nil {
		return "", fmt.Errorf("media: put object: %w", err)
	}
	return s.publicURL(key), nil
}

func (s *S3Store) publicURL(key string) string {
	switch {
	case s.publicBaseURL != "":
		return joinURL(s.publicBaseURL, key)
	case s.endpoint != "" && s.pathStyle:
		return joinURL(s.endpoint+"/"+s.bucket, key)
	case s.endpoint != "":
		return joinURL(s.endpoint, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}
}
