package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/quatton/expodist/apps/distribution/config"
	"github.com/quatton/expodist/apps/distribution/routes"
	"github.com/quatton/expodist/apps/distribution/runner"
	"github.com/quatton/expodist/pkg/db"
	"github.com/quatton/expodist/pkg/kv"
	"github.com/quatton/expodist/pkg/objectstore"
	"github.com/quatton/expodist/pkg/signing"
)

// objectStore is the configured backend. presigner is nil for backends
// without presigned URLs.
type objectStore struct {
	client    objectstore.Client
	presigner routes.Presigner
}

func newObjectStore(ctx context.Context, c *config.EnvConfig) (*objectStore, error) {
	store := c.ObjectStore

	var (
		client    objectstore.Client
		presigner routes.Presigner
	)
	switch store.Backend {
	case config.BackendMinio:
		mc, err := objectstore.NewMinioClient(objectstore.MinioConfig{
			Endpoint:  store.Endpoint,
			AccessKey: store.AccessKey,
			SecretKey: store.SecretKey,
			Bucket:    store.Bucket,
			Region:    store.Region,
			UseSSL:    store.UseSSL,

			ResponseTimeout: store.OperationTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		if err := mc.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket %s: %w", store.Bucket, err)
		}
		client, presigner = mc, mc
	case config.BackendS3:
		sc, err := objectstore.NewS3Client(ctx, objectstore.S3Config{
			Endpoint:  store.Endpoint,
			Region:    store.Region,
			AccessKey: store.AccessKey,
			SecretKey: store.SecretKey,
			Bucket:    store.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
		client, presigner = sc, sc
	default:
		client = objectstore.NewMemoryClient()
	}

	retrying := objectstore.NewRetryingClient(client, objectstore.RetryConfig{
		Attempts:  store.RetryAttempts,
		Backoff:   store.RetryBackoff,
		BaseDelay: store.RetryBaseDelay,
		MaxDelay:  store.RetryMaxDelay,
		Timeout:   store.OperationTimeout,
	})
	exists, err := retrying.BucketExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", store.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrBucketMissing, store.Bucket)
	}
	return &objectStore{client: retrying, presigner: presigner}, nil
}

// newLocks returns the store for the run lock and shift anchors. The memory
// backend is meant for dry runs and keeps both in process.
func newLocks(c *config.EnvConfig) (kv.Store, error) {
	if c.ObjectStore.Backend == config.BackendMemory {
		return kv.NewMemoryStore(), nil
	}
	store, err := kv.NewValkeyStore(c.Valkey)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	return store, nil
}

// deps holds everything a command may need. close releases the connections.
type deps struct {
	db      *bun.DB
	store   *db.Store
	objects *objectStore
	locks   kv.Store
	runner  *runner.Runner
}

func (d *deps) close() {
	if d.db != nil {
		d.db.Close()
	}
	if d.locks != nil {
		d.locks.Close()
	}
}

// checks probes the backends for the health endpoint.
func (d *deps) checks(c *config.EnvConfig) map[string]routes.Check {
	return map[string]routes.Check{
		"database": func(ctx context.Context) error {
			return d.db.PingContext(ctx)
		},
		"objectstore": func(ctx context.Context) error {
			ok, err := d.objects.client.BucketExists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return objectstore.ErrBucketMissing
			}
			return nil
		},
		"state": func(ctx context.Context) error {
			_, err := d.locks.Get(ctx, c.LockKey)
			if errors.Is(err, kv.ErrNotFound) {
				return nil
			}
			return err
		},
	}
}

func openDB(ctx context.Context, c *config.EnvConfig) (*bun.DB, error) {
	database, err := db.New(ctx, c.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database, nil
}

// newDeps loads the signing key, connects the database, object store and
// state store and builds the runner. The key is loaded first so a missing
// key fails before any connection is made.
func newDeps(ctx context.Context, c *config.EnvConfig) (*deps, error) {
	signer, err := signing.NewSigner(signing.FileKeyProvider{Path: c.PrivateKeyPath})
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	d := &deps{}

	database, err := openDB(ctx, c)
	if err != nil {
		return nil, err
	}
	d.db = database
	d.store = db.NewStore(database)

	d.objects, err = newObjectStore(ctx, c)
	if err != nil {
		d.close()
		return nil, err
	}

	d.locks, err = newLocks(c)
	if err != nil {
		d.close()
		return nil, err
	}

	d.runner = runner.New(c, runner.Deps{
		Records:   d.store,
		Retention: d.store,
		State:     d.locks,
		Client:    d.objects.client,
		Signer:    signer,
	})
	return d, nil
}
