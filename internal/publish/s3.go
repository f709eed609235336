package publish

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3 struct {
	Bucket        string
	Region        string
	PublicBaseURL string
	client        objectPutter
}

func NewS3(ctx context.Context, bucket, region, publicBaseURL string) (*S3, error) {
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3{
		Bucket:        bucket,
		Region:        region,
		PublicBaseURL: publicBaseURL,
		client:        s3.NewFromConfig(awsConfig),
	}, nil
}

func (publisher *S3) Upload(ctx context.Context, localPath, assetID string, kind Kind) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(localPath))
	key := assetID + ext
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
		if kind == KindAudio {
			contentType = "audio/mpeg"
		}
	}

	_, err = publisher.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(publisher.Bucket),
		Key:          aws.String(key),
		Body:         file,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return publisher.objectURL(key), nil
}

func (publisher *S3) objectURL(key string) string {
	if publisher.PublicBaseURL != "" {
		return strings.TrimRight(publisher.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", publisher.Bucket, publisher.Region, key)
}
