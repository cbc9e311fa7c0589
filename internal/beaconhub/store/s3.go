package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/options"
)

var _ core.EventStore = (*S3)(nil)

// S3 stores one JSON object per event under
//
//	{prefix}/{escaped device id}/{inverted receivedAt}-{id}.json
//
// The inverted timestamp makes a plain lexical listing return a device's
// newest event first.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	now    func() time.Time
	logger log.Logger
}

// NewS3 connects to an S3-compatible endpoint and creates the bucket if needed.
func NewS3(ctx context.Context, opts *options.S3Options) (*S3, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.UseSSL {
		minioOpts.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &S3{
		client: client,
		bucket: opts.BucketName,
		prefix: strings.Trim(opts.Prefix, "/"),
		now:    time.Now,
		logger: log.WithName("s3-store"),
	}
	if err := s.ensureBucket(ctx, opts.Region); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *S3) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	s.logger.Info("Bucket does not exist, creating", "bucket", s.bucket)
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *S3) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *S3) Append(ctx context.Context, event *model.Event) error {
	if event == nil {
		return errNilEvent
	}
	event.ID = newEventID()
	if event.RecordedAt.IsZero() {
		event.RecordedAt = s.now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	key := eventKey(s.prefix, event)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3) List(ctx context.Context) ([]*model.Event, error) {
	events, err := s.load(ctx, s.root())
	if err != nil {
		return nil, err
	}
	sortNewestFirst(events)
	return events, nil
}

func (s *S3) ListByDevice(ctx context.Context, deviceID string) ([]*model.Event, error) {
	events, err := s.load(ctx, devicePrefix(s.prefix, deviceID))
	if err != nil {
		return nil, err
	}
	sortNewestFirst(events)
	return events, nil
}

func (s *S3) Delete(ctx context.Context, id string) error {
	key, err := s.findKey(ctx, id)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *S3) DeleteAll(ctx context.Context) error {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.root(), Recursive: true})
	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return nil
}

func (s *S3) Latest(ctx context.Context, deviceID string) (*model.Event, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    devicePrefix(s.prefix, deviceID),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list events: %w", obj.Err)
		}
		return s.get(ctx, obj.Key)
	}
	return nil, core.ErrNotFound
}

func (s *S3) Devices(ctx context.Context) ([]string, error) {
	var ids []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.root()}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list devices: %w", obj.Err)
		}
		dir := strings.TrimSuffix(strings.TrimPrefix(obj.Key, s.root()), "/")
		if dir == "" {
			continue
		}
		id, err := url.PathUnescape(dir)
		if err != nil {
			s.logger.Warn("Skipping undecodable device prefix", "prefix", obj.Key)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *S3) root() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *S3) load(ctx context.Context, prefix string) ([]*model.Event, error) {
	var events []*model.Event
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list events: %w", obj.Err)
		}
		e, err := s.get(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *S3) get(ctx context.Context, key string) (*model.Event, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	var e model.Event
	if err := json.NewDecoder(obj).Decode(&e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &e, nil
}

func (s *S3) findKey(ctx context.Context, id string) (string, error) {
	if id == "" || strings.Contains(id, "/") {
		return "", core.ErrNotFound
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.root(), Recursive: true}) {
		if obj.Err != nil {
			return "", fmt.Errorf("list events: %w", obj.Err)
		}
		if _, got, err := parseEventKey(s.prefix, obj.Key); err == nil && got == id {
			return obj.Key, nil
		}
	}
	return "", core.ErrNotFound
}

func devicePrefix(prefix, deviceID string) string {
	p := url.PathEscape(deviceID) + "/"
	if prefix == "" {
		return p
	}
	return prefix + "/" + p
}

func eventKey(prefix string, e *model.Event) string {
	inverted := uint64(math.MaxInt64 - e.Record.ReceivedAt.UnixNano())
	return fmt.Sprintf("%s%019d-%s.json", devicePrefix(prefix, e.Record.DeviceID), inverted, e.ID)
}

var errBadKey = errors.New("not an event key")

// parseEventKey extracts device id and event id from a key built by eventKey.
func parseEventKey(prefix, key string) (deviceID, id string, err error) {
	rest := key
	if prefix != "" {
		if !strings.HasPrefix(key, prefix+"/") {
			return "", "", errBadKey
		}
		rest = strings.TrimPrefix(key, prefix+"/")
	}
	dir, file, ok := strings.Cut(rest, "/")
	if !ok || !strings.HasSuffix(file, ".json") {
		return "", "", errBadKey
	}
	_, id, ok = strings.Cut(strings.TrimSuffix(file, ".json"), "-")
	if !ok || id == "" {
		return "", "", errBadKey
	}
	deviceID, err = url.PathUnescape(dir)
	if err != nil {
		return "", "", errBadKey
	}
	return deviceID, id, nil
}
