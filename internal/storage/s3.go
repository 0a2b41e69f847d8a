package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/lucko/bytebin/internal/content"
)

// metadata keys mirror the original object-metadata scheme: every
// field other than the bytes themselves travels as S3 user metadata.
const (
	metaVersion      = "bytebin-version"
	metaContentType  = "bytebin-contenttype"
	metaExpiry       = "bytebin-expiry"
	metaLastModified = "bytebin-lastmodified"
	metaModifiable   = "bytebin-modifiable"
	metaAuthKey      = "bytebin-authkey"
	metaEncoding     = "bytebin-encoding"
)

// S3Client is the subset of the AWS SDK S3 client used by S3. Declared
// as an interface so tests can supply a fake.
type S3Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 persists records as objects in a single bucket, one object per
// key, with everything but the bytes carried as object metadata.
type S3 struct {
	id     string
	bucket string
	client S3Client
}

func NewS3(id, bucket string, client S3Client) *S3 {
	return &S3{id: id, bucket: bucket, client: client}
}

func (s *S3) BackendID() string { return s.id }

func (s *S3) Save(ctx context.Context, rec *content.Record) error {
	meta := map[string]string{
		metaVersion:      strconv.Itoa(fileVersion),
		metaContentType:  rec.ContentType,
		metaExpiry:       strconv.FormatInt(expiryMillis(rec.Expiry), 10),
		metaLastModified: strconv.FormatInt(rec.LastModified.UnixMilli(), 10),
		metaModifiable:   strconv.FormatBool(rec.Modifiable),
		metaEncoding:     rec.EncodingHeader(),
	}
	if rec.Modifiable {
		meta[metaAuthKey] = rec.AuthKey
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(rec.Key),
		Body:     bytes.NewReader(rec.Content),
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", rec.Key, err)
	}
	return nil
}

func (s *S3) Load(ctx context.Context, key string) (*content.Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3: get %s: %w", key, err)
	}
	defer out.Body.Close()

	rec, err := recordFromMetadata(key, out.Metadata)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("s3: read body %s: %w", key, err)
	}
	rec.Content = buf.Bytes()
	rec.ContentLength = int64(buf.Len())
	rec.BackendID = s.id
	return rec, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

func (s *S3) List(ctx context.Context) ([]*content.Record, error) {
	keys, err := s.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*content.Record, 0, len(keys))
	for _, key := range keys {
		head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			continue
		}
		rec, err := recordFromMetadata(key, head.Metadata)
		if err != nil {
			continue
		}
		rec.ContentLength = aws.ToInt64(head.ContentLength)
		rec.BackendID = s.id
		out = append(out, rec)
	}
	return out, nil
}

func (s *S3) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var token *string
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: list: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}
	return keys, nil
}

func recordFromMetadata(key string, meta map[string]string) (*content.Record, error) {
	rec := &content.Record{
		Key:         key,
		ContentType: meta[metaContentType],
	}
	if enc := meta[metaEncoding]; enc != "" {
		rec.Encoding = splitCommaList(enc)
	}
	if v := meta[metaExpiry]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("s3: parse expiry metadata: %w", err)
		}
		if ms == -1 {
			rec.Expiry = time.Time{}
		} else {
			rec.Expiry = time.UnixMilli(ms)
		}
	}
	if v := meta[metaLastModified]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("s3: parse lastmodified metadata: %w", err)
		}
		rec.LastModified = time.UnixMilli(ms)
	}
	if v := meta[metaModifiable]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("s3: parse modifiable metadata: %w", err)
		}
		rec.Modifiable = b
	}
	rec.AuthKey = meta[metaAuthKey]
	return rec, nil
}

func splitCommaList(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func isNotFound(err error) bool {
	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return true
	}
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode() == 404
	}
	return false
}
