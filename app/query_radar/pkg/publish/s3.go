package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/config"
)

// Publisher 上传生成好的报表文件
type Publisher interface {
	Publish(ctx context.Context, path string) (string, error)
}

// putObjectAPI S3 客户端中用到的方法
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher 把报表上传到 S3 兼容存储
type S3Publisher struct {
	client putObjectAPI
	bucket string
	prefix string
}

// Ensure S3Publisher implements Publisher
var _ Publisher = (*S3Publisher)(nil)

// NewS3Publisher 加载默认 AWS 凭证创建上传器，Endpoint 用于 MinIO、LocalStack 等
func NewS3Publisher(ctx context.Context, cfg config.PublishConfig) (*S3Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Publisher{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Publish 上传文件，对象键为 prefix + 文件名
func (p *S3Publisher) Publish(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	key := p.prefix + filepath.Base(path)

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put failed: %w", err)
	}
	return key, nil
}
