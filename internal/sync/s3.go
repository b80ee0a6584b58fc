package sync

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectPutter is the part of *s3.Client the destination uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads each snapshot to a fixed object key. The digest and
// record counts travel as object metadata so consumers can tell whether the
// object changed without downloading it.
type S3Destination struct {
	client objectPutter
	bucket string
	key    string
}

// NewS3Destination creates an S3 destination. A non-empty endpoint selects
// path-style addressing for MinIO and other S3-compatible servers.
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{client: client, bucket: bucket, key: key}, nil
}

// Name implements Destination.
func (d *S3Destination) Name() string {
	return "s3://" + d.bucket + "/" + d.key
}

// Write implements Destination.
func (d *S3Destination) Write(ctx context.Context, snap *Snapshot) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.key),
		Body:        bytes.NewReader(snap.Data),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"paywall-digest":         snap.Digest,
			"paywall-articles":       strconv.Itoa(snap.Counts.Articles),
			"paywall-receipts":       strconv.Itoa(snap.Counts.Receipts),
			"paywall-token-accounts": strconv.Itoa(snap.Counts.TokenAccounts),
		},
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
