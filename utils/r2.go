// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
)

// ErrR2NotConfigured is returned by InitR2 when the R2 env vars are absent.
// Telemetry archiving is optional; the engine runs without it.
var ErrR2NotConfigured = errors.New("R2 credentials not configured")

var r2Client *s3.Client
var r2Bucket string

func InitR2() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	r2Bucket = os.Getenv("R2_BUCKET_NAME")

	if accountID == "" || accessKeyID == "" || accessKeySecret == "" || r2Bucket == "" {
		return ErrR2NotConfigured
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// R2Enabled reports whether a client was initialized.
func R2Enabled() bool {
	return r2Client != nil
}

// ArchiveTelemetry stores the raw gameData blob received at finish time for
// offline fraud review, keyed by shop and session.
func ArchiveTelemetry(ctx context.Context, shopDomain, sessionID string, payload []byte) error {
	if r2Client == nil {
		return ErrR2NotConfigured
	}

	key := fmt.Sprintf("telemetry/%s/%s.json", slug.Make(shopDomain), sessionID)
	_, err := r2Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r2Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload telemetry to R2: %w", err)
	}
	return nil
}
