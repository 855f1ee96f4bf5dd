package storage

import (
	"context"
	"io"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/logs"
)

// StorageGCS is a Google Cloud Storage-based blob store.
// All object names are placed under Prefix.
type StorageGCS struct {
	bucketName string
	prefix     string
	bucket     *gcs.BucketHandle
	log        logs.Log
	ctx        context.Context
}

func NewStorageGCS(ctx context.Context, log logs.Log, bucketName, prefix string) (*StorageGCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	bucket := client.Bucket(bucketName)
	return &StorageGCS{
		bucketName: bucketName,
		prefix:     prefix,
		bucket:     bucket,
		log:        log,
		ctx:        ctx,
	}, nil
}

func (s *StorageGCS) WriteFile(name string) (io.WriteCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	s.log.Debugf("Writing gs://%v/%v", s.bucketName, joinKey(s.prefix, name))
	w := s.bucket.Object(joinKey(s.prefix, name)).NewWriter(s.ctx)
	return w, nil
}

func (s *StorageGCS) ReadFile(name string) (*File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(joinKey(s.prefix, name)).NewReader(s.ctx)
	if err != nil {
		return nil, err
	}
	return &File{
		Reader:     r,
		ModifiedAt: r.Attrs.LastModified,
		Size:       r.Attrs.Size,
	}, nil
}

func (s *StorageGCS) DeleteFile(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	return s.bucket.Object(joinKey(s.prefix, name)).Delete(s.ctx)
}

func (s *StorageGCS) Describe(name string) string {
	return "gs://" + s.bucketName + "/" + joinKey(s.prefix, name)
}
