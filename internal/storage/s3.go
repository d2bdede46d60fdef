package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3KeyPrefix は投稿画像のオブジェクトキーの接頭辞。
const s3KeyPrefix = "publications/"

// S3Options はS3Storageの接続設定。
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string // MinIO等のS3互換エンドポイント。空ならAWS
	PublicBaseURL   string // 公開URLのベース。空ならバーチャルホスト形式のAWS URL
	AccessKeyID     string
	SecretAccessKey string
}

// s3API はS3Storageが使うS3クライアントの部分集合。
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage はS3互換オブジェクトストレージに画像を保存する。
type S3Storage struct {
	client  s3API
	bucket  string
	baseURL string
}

// NewS3Storage はS3Storageを生成する。
// 静的キーが指定されない場合はAWS SDKの既定の認証情報チェーンを使う。
func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is empty")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	baseURL := strings.TrimRight(opts.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}

	return &S3Storage{client: client, bucket: opts.Bucket, baseURL: baseURL}, nil
}

// Save はオブジェクトをアップロードし、公開URLを返す。
func (s *S3Storage) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	key := s3KeyPrefix + name

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// Open はオブジェクトの内容を返す。
func (s *S3Storage) Open(ctx context.Context, ref string) ([]byte, error) {
	key, ok := s.keyOf(ref)
	if !ok {
		return nil, ErrForeignRef
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// Owns は参照がこのバケットの公開URLであるかを返す。
func (s *S3Storage) Owns(ref string) bool {
	_, ok := s.keyOf(ref)
	return ok
}

// Delete はオブジェクトを削除する。S3のDeleteObjectは存在しないキーでも成功する。
func (s *S3Storage) Delete(ctx context.Context, ref string) error {
	key, ok := s.keyOf(ref)
	if !ok {
		return ErrForeignRef
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) keyOf(ref string) (string, bool) {
	prefix := s.baseURL + "/" + s3KeyPrefix
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, prefix)
	if !validName(name) {
		return "", false
	}
	return s3KeyPrefix + name, true
}

var _ Storage = (*S3Storage)(nil)
