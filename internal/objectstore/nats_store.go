package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsObjectStore implements the core.ObjectStore interface using NATS
// JetStream object stores, one per bucket name.
type NatsObjectStore struct {
	jetstreamContext nats.JetStreamContext

	mu     sync.Mutex
	stores map[string]nats.ObjectStore
}

// NewNats creates a new NatsObjectStore. Buckets are bound lazily on first use.
func NewNats(jetstreamContext nats.JetStreamContext) *NatsObjectStore {
	return &NatsObjectStore{
		jetstreamContext: jetstreamContext,
		stores:           make(map[string]nats.ObjectStore),
	}
}

// bucket binds to the named object store, creating it if needed.
func (n *NatsObjectStore) bucket(bucketName string) (nats.ObjectStore, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if store, ok := n.stores[bucketName]; ok {
		return store, nil
	}

	store, err := n.jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Storage for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = n.jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	n.stores[bucketName] = store

	return store, nil
}

// Download streams an object from the NATS object store into dst.
func (n *NatsObjectStore) Download(ctx context.Context, bucketName, key string, dst io.Writer) error {
	store, err := n.bucket(bucketName)
	if err != nil {
		return err
	}

	obj, err := store.Get(key, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, bucketName, err)
	}

	_, copyErr := io.Copy(dst, obj)
	closeErr := obj.Close()

	if copyErr != nil {
		return fmt.Errorf("failed to read object '%s': %w", key, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return nil
}

// Upload saves src to the NATS object store.
func (n *NatsObjectStore) Upload(ctx context.Context, bucketName, key string, src io.Reader) error {
	store, err := n.bucket(bucketName)
	if err != nil {
		return err
	}

	_, err = store.Put(&nats.ObjectMeta{Name: key}, src, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, bucketName, err)
	}

	return nil
}

// Locator returns the nats:// URI of an object.
func (n *NatsObjectStore) Locator(bucketName, key string) string {
	return "nats://" + bucketName + "/" + key
}
