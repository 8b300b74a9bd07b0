package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/pkg/logger"
)

const reportsPrefix = "reports/"

type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint is set for S3-compatible services such as MinIO.
	Endpoint string
}

// S3Storage keeps artifacts under the reports/ prefix of one bucket.
type S3Storage struct {
	client s3iface.S3API
	bucket string
}

func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS session")
	}

	s := NewS3StorageWithClient(s3.New(sess), cfg.Bucket)
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func NewS3StorageWithClient(client s3iface.S3API, bucket string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket}
}

func (s *S3Storage) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	logger.Log.WithField("bucket", s.bucket).Info("Bucket not found, creating")
	if _, err := s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return errors.Wrap(err, "failed to create bucket")
	}
	return nil
}

func (s *S3Storage) Save(ctx context.Context, name, contentType string, data []byte) (*Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(reportsPrefix + name),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to upload report")
	}
	return s.head(ctx, name)
}

func (s *S3Storage) Open(ctx context.Context, name string) (io.ReadCloser, *Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, nil, err
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(reportsPrefix + name),
	})
	if err != nil {
		if isMissing(err) {
			return nil, nil, apperrors.NewNotFoundError("report")
		}
		return nil, nil, errors.Wrap(err, "failed to download report")
	}
	artifact := &Artifact{
		Name:        name,
		Size:        aws.Int64Value(out.ContentLength),
		ContentType: aws.StringValue(out.ContentType),
		CreatedAt:   aws.TimeValue(out.LastModified),
		DownloadURL: DownloadURL(name),
	}
	return out.Body, artifact, nil
}

func (s *S3Storage) List(ctx context.Context) ([]Artifact, error) {
	artifacts := []Artifact{}
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(reportsPrefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), reportsPrefix)
			if !strings.HasSuffix(name, ".pdf") {
				continue
			}
			artifacts = append(artifacts, Artifact{
				Name:        name,
				Size:        aws.Int64Value(obj.Size),
				ContentType: "application/pdf",
				CreatedAt:   aws.TimeValue(obj.LastModified),
				DownloadURL: DownloadURL(name),
			})
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reports")
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

func (s *S3Storage) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := s.head(ctx, name); err != nil {
		return err
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(reportsPrefix + name),
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete report")
	}
	return nil
}

func (s *S3Storage) head(ctx context.Context, name string) (*Artifact, error) {
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(reportsPrefix + name),
	})
	if err != nil {
		if isMissing(err) {
			return nil, apperrors.NewNotFoundError("report")
		}
		return nil, errors.Wrap(err, "failed to stat report")
	}
	return &Artifact{
		Name:        name,
		Size:        aws.Int64Value(out.ContentLength),
		ContentType: aws.StringValue(out.ContentType),
		CreatedAt:   aws.TimeValue(out.LastModified),
		DownloadURL: DownloadURL(name),
	}, nil
}

func isMissing(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
