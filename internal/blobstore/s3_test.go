package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchKeyWithPrefix(t *testing.T) {
	s := &Store{bucket: "migration-staging", keyPrefix: "exports"}
	assert.Equal(t, "exports/job-1/orders_0.parquet", s.BatchKey("job-1", "orders", 0))
	assert.Equal(t, "exports/job-1/orders_7.parquet", s.BatchKey("job-1", "orders", 7))
}

func TestBatchKeyWithoutPrefix(t *testing.T) {
	s := &Store{bucket: "migration-staging", keyPrefix: ""}
	assert.Equal(t, "job-1/orders_0.parquet", s.BatchKey("job-1", "orders", 0))
}

func TestJobPrefix(t *testing.T) {
	s := &Store{bucket: "migration-staging", keyPrefix: "exports"}
	assert.Equal(t, "exports/job-1/", s.JobPrefix("job-1"))

	s2 := &Store{bucket: "migration-staging", keyPrefix: ""}
	assert.Equal(t, "job-1/", s2.JobPrefix("job-1"))
}

func TestBucket(t *testing.T) {
	s := &Store{bucket: "migration-staging"}
	assert.Equal(t, "migration-staging", s.Bucket())
}
