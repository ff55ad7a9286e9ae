package files

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
)

// maximum number of keys per DeleteObjects call
const s3DeleteBatch = 1000

// s3API is the part of *s3.Client the store uses.
type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Store keeps artifacts in an S3 (or S3 compatible) bucket.
type S3Store struct {
	client s3API
	bucket string
}

var _ certificate.ArtifactStore = (*S3Store)(nil) // interface compliance check

func NewS3Store(ctx context.Context, conf core.StorageConfig) (*S3Store, error) {
	if conf.S3Bucket == "" {
		return nil, errors.New("storage.s3Bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(conf.S3Region))
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}

	// static credentials if provided
	if conf.S3AccessKeyID != "" && conf.S3SecretAccessKey != "" {
		awsCfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			conf.S3AccessKeyID,
			conf.S3SecretAccessKey,
			"", // session token
		))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if conf.S3Endpoint != "" { // minio & co
			o.BaseEndpoint = aws.String(conf.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, conf.S3Bucket), nil
}

func newS3Store(client s3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	return errors.Wrap(err, "putting object")
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, certificate.ErrArtifactNotFound
		}
		return nil, errors.Wrap(err, "getting object")
	}
	return out.Body, nil
}

func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	var keys []types.ObjectIdentifier
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix + "/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return errors.Wrap(err, "listing objects")
		}
		for _, obj := range page.Contents {
			keys = append(keys, types.ObjectIdentifier{Key: obj.Key})
		}
	}

	for start := 0; start < len(keys); start += s3DeleteBatch {
		end := start + s3DeleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: keys[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return errors.Wrap(err, "deleting objects")
		}
	}
	return nil
}
