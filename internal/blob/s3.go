package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/opencontainers/go-digest"
)

// S3Scheme prefixes URLs served by S3.
const S3Scheme = "s3://"

// S3Config configures an S3 compatible object store.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3 stores documents as objects keyed by the sha256 digest of their
// bytes. URLs take the form s3://<bucket>/<digest>.json.
type S3 struct {
	client   *minio.Client
	bucket   string
	region   string
	endpoint string

	initOnce sync.Once
	initErr  error
}

// NewS3 validates cfg and builds a client. No request is made until the
// first operation, which also creates the bucket if it is missing.
func NewS3(cfg S3Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required: %w", errdefs.ErrInvalidArgument)
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required: %w", errdefs.ErrInvalidArgument)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required: %w", errdefs.ErrInvalidArgument)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3{client: client, bucket: bucket, region: region, endpoint: endpoint}, nil
}

func (s *S3) Scheme() string { return S3Scheme }

func (s *S3) Label() string { return fmt.Sprintf("s3 (%s/%s)", s.endpoint, s.bucket) }

func (s *S3) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3) Read(ctx context.Context, url string) ([]byte, error) {
	key, err := s.key("read", url)
	if err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, &Error{Backend: s.Label(), Operation: "read", URL: url, Err: fmt.Errorf("ensure bucket: %w", err)}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &Error{Backend: s.Label(), Operation: "read", URL: url, Err: mapS3Error(err)}
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, &Error{Backend: s.Label(), Operation: "read", URL: url, Err: mapS3Error(err)}
	}
	return data, nil
}

// Put stores data under its digest. Objects that already exist are
// left alone.
func (s *S3) Put(ctx context.Context, data []byte) (string, error) {
	key := digest.FromBytes(data).Encoded() + ".json"
	url := S3Scheme + s.bucket + "/" + key

	if err := s.ensureBucket(ctx); err != nil {
		return "", &Error{Backend: s.Label(), Operation: "put", Err: fmt.Errorf("ensure bucket: %w", err)}
	}

	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return url, nil
	}
	if err := mapS3Error(err); !errdefs.IsNotFound(err) {
		return "", &Error{Backend: s.Label(), Operation: "put", URL: url, Err: err}
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", &Error{Backend: s.Label(), Operation: "put", URL: url, Err: err}
	}
	log.G(ctx).WithField("url", url).Debug("stored blob")
	return url, nil
}

func (s *S3) List(ctx context.Context) ([]string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, &Error{Backend: s.Label(), Operation: "list", Err: fmt.Errorf("ensure bucket: %w", err)}
	}
	var urls []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, &Error{Backend: s.Label(), Operation: "list", Err: obj.Err}
		}
		if !localName.MatchString(obj.Key) {
			continue
		}
		urls = append(urls, S3Scheme+s.bucket+"/"+obj.Key)
	}
	sort.Strings(urls)
	return urls, nil
}

func (s *S3) Remove(ctx context.Context, url string) error {
	key, err := s.key("remove", url)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return &Error{Backend: s.Label(), Operation: "remove", URL: url, Err: mapS3Error(err)}
	}
	log.G(ctx).WithField("url", url).Debug("removed blob")
	return nil
}

func (s *S3) Stat(ctx context.Context, url string) (Stat, error) {
	key, err := s.key("stat", url)
	if err != nil {
		return Stat{}, err
	}
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return Stat{}, &Error{Backend: s.Label(), Operation: "stat", URL: url, Err: mapS3Error(err)}
	}
	return Stat{Size: info.Size, ModTime: info.LastModified}, nil
}

// key extracts the object key, rejecting URLs for other buckets.
func (s *S3) key(op, url string) (string, error) {
	rest, err := trimScheme(s.Label(), op, S3Scheme, url)
	if err != nil {
		return "", err
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket != s.bucket || key == "" {
		return "", &Error{
			Backend:   s.Label(),
			Operation: op,
			URL:       url,
			Err:       fmt.Errorf("url is not an object in bucket %s: %w", s.bucket, errdefs.ErrInvalidArgument),
		}
	}
	return key, nil
}

// mapS3Error classifies missing objects and buckets as not found.
func mapS3Error(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%v: %w", err, errdefs.ErrNotFound)
	}
	return err
}
