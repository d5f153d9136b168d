// Package kvstore provides the persistent key-value stores used for settings and
// user-created voices: a NATS JetStream KV bucket and a local BadgerDB.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/regen-service/internal/core"
	"github.com/nats-io/nats.go"
)

// NatsKV implements core.KeyValueStore over a JetStream KV bucket.
type NatsKV struct {
	bucket string
	kv     nats.KeyValue
}

// NewNatsKV creates the bucket if needed and binds to it.
func NewNatsKV(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsKV, error) {
	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucketName,
		Description: "Regen service settings and voices.",
		History:     1,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create kv bucket '%s': %w", bucketName, err)
		}

		kv, err = jetstreamContext.KeyValue(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing kv bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsKV{bucket: bucketName, kv: kv}, nil
}

// Get returns the latest value for key, or core.ErrKeyNotFound.
func (n *NatsKV) Get(_ context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: '%s' in bucket '%s'", core.ErrKeyNotFound, key, n.bucket)
		}

		return nil, fmt.Errorf("failed to get key '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return entry.Value(), nil
}

// Put stores value under key.
func (n *NatsKV) Put(_ context.Context, key string, value []byte) error {
	_, err := n.kv.Put(key, value)
	if err != nil {
		return fmt.Errorf("failed to put key '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}
