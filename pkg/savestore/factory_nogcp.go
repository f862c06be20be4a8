//go:build !gcp

package savestore

import (
	"context"
	"fmt"
)

func newGCSStoreFromConfig(ctx context.Context, cfg GCSConfig) (Store, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
