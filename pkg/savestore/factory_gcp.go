//go:build gcp

package savestore

import "context"

func newGCSStoreFromConfig(ctx context.Context, cfg GCSConfig) (Store, error) {
	return NewGCSStore(ctx, cfg)
}
