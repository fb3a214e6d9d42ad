package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/facette/natsort"
	"github.com/hashicorp/go-multierror"
)

// deleteBatchSize задаёт предел DeleteObjects на один запрос.
const deleteBatchSize = 1000

// Config содержит параметры подключения к S3-совместимому хранилищу.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
	MaxAttempts     int
}

// Client представляет собой клиент объектного хранилища (AWS S3 или MinIO).
type Client struct {
	s3Client   *s3.Client
	presigner  *s3.PresignClient
	uploader   *manager.Uploader
	bucketName string
	region     string
	logger     *slog.Logger
}

// NewClient создаёт клиент. Повторы транспортных ошибок делает стандартный ретраер SDK.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket name must be set")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxAttempts
				o.MaxBackoff = 30 * time.Second
			})
		}),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		// MinIO и прочие S3-совместимые хранилища не всегда понимают новые checksum-заголовки
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &Client{
		s3Client:   s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		uploader:   manager.NewUploader(s3Client),
		bucketName: cfg.Bucket,
		region:     cfg.Region,
		logger:     logger,
	}, nil
}

// EnsureBucket проверяет наличие бакета и создаёт его при необходимости.
func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucketName)})
	if err == nil {
		c.logger.Info("bucket already exists", "bucket", c.bucketName)
		return nil
	}

	c.logger.Info("bucket not found, creating", "bucket", c.bucketName)
	input := &s3.CreateBucketInput{Bucket: aws.String(c.bucketName)}
	if c.region != "" && c.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}
	if _, err := c.s3Client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket '%s': %w", c.bucketName, err)
	}

	waiter := s3.NewBucketExistsWaiter(c.s3Client)
	if err := waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucketName)}, 30*time.Second); err != nil {
		return fmt.Errorf("failed waiting for bucket '%s' to be created: %w", c.bucketName, err)
	}
	c.logger.Info("bucket created", "bucket", c.bucketName)
	return nil
}

// Get читает объект целиком. Для отсутствующего ключа возвращается domain.ErrObjectNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get %s: %w", key, domain.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, c.bucketName, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	c.logger.Debug("object fetched",
		"key", key,
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return data, nil
}

// Put перезаписывает объект.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	start := time.Now()

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, c.bucketName, err)
	}

	c.logger.Info("object uploaded",
		"key", key,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// DeleteMany удаляет ключи пачками в quiet-режиме. Отсутствующие ключи ошибкой не считаются.
func (c *Client) DeleteMany(ctx context.Context, keys []string) error {
	var result *multierror.Error

	for from := 0; from < len(keys); from += deleteBatchSize {
		to := from + deleteBatchSize
		if to > len(keys) {
			to = len(keys)
		}

		objects := make([]types.ObjectIdentifier, 0, to-from)
		for _, k := range keys[from:to] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucketName),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("delete batch of %d objects: %w", len(objects), err))
			continue
		}
		for _, e := range out.Errors {
			if aws.ToString(e.Code) == "NoSuchKey" {
				continue
			}
			result = multierror.Append(result, fmt.Errorf("delete %s: %s: %s",
				aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message)))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		c.logger.Error("failed to delete some objects", "keys", len(keys), "error", err)
		return err
	}
	c.logger.Info("objects deleted", "keys", len(keys))
	return nil
}

// ListWithPrefix возвращает все объекты под префиксом в натуральном порядке ключей.
func (c *Client) ListWithPrefix(ctx context.Context, prefix string) ([]domain.StoredObject, error) {
	objects := []domain.StoredObject{}

	p := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucketName),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" {
				continue
			}
			objects = append(objects, domain.StoredObject{Key: key, Size: aws.ToInt64(obj.Size)})
		}
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return natsort.Compare(objects[i].Key, objects[j].Key)
	})
	return objects, nil
}

// PresignUpload выдаёт ссылку для прямой загрузки PUT-запросом.
func (c *Client) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	req, err := c.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}
	return req.URL, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
