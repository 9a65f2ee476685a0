package objstore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/fine-structures/qlm.SDK/libqlm/archive"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
)

// levelPrefix names each level object of a run: <root>/<run>/states_lv_<level>
const levelPrefix = "states_lv_"

// Config locates an S3-compatible bucket.
type Config struct {
	Endpoint  string // host:port
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
	Prefix    string // prepended to every object key
}

// Store is a qlm.LevelStore keeping one compressed object per frontier level.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
	codec  archive.Codec
}

// NewStore returns a level store in the given bucket.
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		codec:  archive.CodecZstd,
	}
}

// Dial connects to the configured endpoint and creates the bucket if it doesn't exist.
func Dial(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.Wrap(qlm.ErrBadCatalogParam, "object store needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "checking bucket %q", cfg.Bucket)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrapf(err, "creating bucket %q", cfg.Bucket)
		}
		klog.Infof("created bucket %q on %s", cfg.Bucket, cfg.Endpoint)
	}
	return NewStore(client, cfg.Bucket, cfg.Prefix), nil
}

func (s *Store) runDir(run string) string {
	dir := path.Join(s.prefix, run)
	if dir == "" {
		return ""
	}
	return dir + "/"
}

// LevelKey returns the object key holding the given level of a run.
func (s *Store) LevelKey(run string, level int) string {
	return s.runDir(run) + fmt.Sprintf("%s%d", levelPrefix, level)
}

// ParseLevelName returns the level number of an object name such as "states_lv_12".
func ParseLevelName(name string) (int, bool) {
	num, ok := strings.CutPrefix(name, levelPrefix)
	if !ok {
		return 0, false
	}
	level, err := strconv.Atoi(num)
	if err != nil || level < 0 || strconv.Itoa(level) != num {
		return 0, false
	}
	return level, true
}

// PutLevel uploads one level as a single object, replacing any previous copy.
func (s *Store) PutLevel(ctx context.Context, run string, level int, states []qlm.State) error {
	data, err := archive.AppendLevel(nil, states, s.codec)
	if err != nil {
		return err
	}
	key := s.LevelKey(run, level)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return errors.Wrapf(err, "uploading %s", key)
	}
	return nil
}

// Levels downloads every stored level of a run, which must be contiguous from level 0.
func (s *Store) Levels(ctx context.Context, run string) ([][]qlm.State, error) {
	dir := s.runDir(run)

	var found []int
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix: dir,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if level, ok := ParseLevelName(strings.TrimPrefix(obj.Key, dir)); ok {
			found = append(found, level)
		}
	}
	slices.Sort(found)

	levels := make([][]qlm.State, 0, len(found))
	for i, level := range found {
		if level != i {
			return nil, errors.Wrapf(qlm.ErrCorruptRecord, "run %q is missing level %d", run, i)
		}
		states, err := s.getLevel(ctx, s.LevelKey(run, level))
		if err != nil {
			return nil, err
		}
		levels = append(levels, states)
	}
	return levels, nil
}

func (s *Store) getLevel(ctx context.Context, key string) ([]qlm.State, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	if _, err = obj.Stat(); err != nil {
		if errResp := minio.ToErrorResponse(err); errResp.Code == "NoSuchKey" {
			return nil, errors.Wrapf(qlm.ErrCorruptRecord, "level object %s vanished", key)
		}
		return nil, err
	}
	states, err := archive.ReadLevel(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", key)
	}
	return states, nil
}

// DeleteRun removes every stored level of a run.
func (s *Store) DeleteRun(ctx context.Context, run string) error {
	dir := s.runDir(run)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix: dir,
	}) {
		if obj.Err != nil {
			return obj.Err
		}
		err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{})
		if err != nil {
			if errResp := minio.ToErrorResponse(err); errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
				continue
			}
			return err
		}
	}
	return nil
}
