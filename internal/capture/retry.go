package capture

import (
	"context"

	"github.com/cenkalti/backoff"

	"github.com/warpcomdev/ustreamerd/internal/servicelog"
)

// StartWithBackoff calls src.Start, retrying with exponential backoff
// on failure until it succeeds or ctx is cancelled. Capture sources
// that open a device node (a camera, a loopback file) can fail
// transiently while the underlying hardware settles, the same failure
// mode the teacher's upload backend retries around.
func StartWithBackoff(ctx context.Context, src Source, log servicelog.Logger) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // bounded only by ctx

	return backoff.Retry(func() error {
		if err := src.Start(); err != nil {
			log.Warn("capture start failed, retrying", servicelog.String("source", src.Name()), servicelog.Error(err))
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}
