package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/snapguard/snapguard/internal/domain"
)

// s3Backend opera sobre un bucket S3 o compatible (MinIO). Un mismo bucket
// puede alojar varios repositorios separados por prefix.
type s3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

func newS3(ctx context.Context, cfg domain.RepositoryConfig) (*s3Backend, error) {
	bucket := cfg.Setting("bucket", "")
	if bucket == "" {
		return nil, fmt.Errorf("repository %q: setting bucket requerido", cfg.Name)
	}
	region := cfg.Setting("region", "us-east-1")
	endpoint := cfg.Setting("endpoint", "")
	pathStyle := strings.EqualFold(cfg.Setting("path_style", ""), "true")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("repository %q: aws config: %w", cfg.Name, err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if pathStyle {
			o.UsePathStyle = true
		}
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	prefix := strings.Trim(cfg.Setting("prefix", ""), "/")
	if prefix != "" {
		prefix += "/"
	}
	return &s3Backend{client: client, bucket: bucket, prefix: prefix}, nil
}

func (b *s3Backend) key(k string) string { return b.prefix + k }

func (b *s3Backend) Verify(ctx context.Context, token, nodeID string) error {
	key := b.key(probeKey(token, nodeID))
	payload := []byte(token)

	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
		Body:   bytes.NewReader(payload),
	}); err != nil {
		return fmt.Errorf("write probe: %w", err)
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("read probe back: %w", err)
	}
	got, err := io.ReadAll(out.Body)
	_ = out.Body.Close()
	if err != nil {
		return fmt.Errorf("read probe body: %w", err)
	}
	if !bytes.Equal(got, payload) {
		return fmt.Errorf("probe readback mismatch for %s", key)
	}

	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: &key}); err != nil {
		return fmt.Errorf("remove probe: %w", err)
	}
	return nil
}

func (b *s3Backend) Generation(ctx context.Context) (int64, error) {
	key := b.key(generationKey)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read generation marker: %w", err)
	}
	data, err := io.ReadAll(out.Body)
	_ = out.Body.Close()
	if err != nil {
		return 0, fmt.Errorf("read generation marker body: %w", err)
	}
	return decodeGeneration(data)
}

func (b *s3Backend) SetGeneration(ctx context.Context, gen int64) error {
	key := b.key(generationKey)
	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
		Body:   bytes.NewReader(encodeGeneration(gen)),
	}); err != nil {
		return fmt.Errorf("write generation marker: %w", err)
	}
	return nil
}

func (b *s3Backend) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	full := b.key(prefix)
	var out []BlobInfo
	var token *string
	for {
		page, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &b.bucket,
			Prefix:            &full,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			// Claves relativas a la raíz del repositorio, no al bucket.
			key := strings.TrimPrefix(aws.ToString(obj.Key), b.prefix)
			out = append(out, BlobInfo{Key: key, Size: size, ModTime: aws.ToTime(obj.LastModified)})
		}
		if page.IsTruncated != nil && *page.IsTruncated && page.NextContinuationToken != nil {
			token = page.NextContinuationToken
			continue
		}
		break
	}
	return out, nil
}

func (b *s3Backend) Delete(ctx context.Context, keys ...string) error {
	// DeleteObject sobre clave inexistente es éxito en S3.
	for _, k := range keys {
		key := b.key(k)
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: &key}); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

var _ Backend = (*s3Backend)(nil)
