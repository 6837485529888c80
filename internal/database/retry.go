package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// retry calls fn until it succeeds, ctx ends or the attempts run out,
// doubling the wait between tries. Stores often come up after the server
// under docker compose.
func retry(ctx context.Context, log zerolog.Logger, what string, fn func(context.Context) error) error {
	wait := connectBackoff
	var err error
	for i := 1; i <= connectAttempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == connectAttempts {
			break
		}
		log.Warn().Err(err).Int("attempt", i).Dur("retry_in", wait).Msgf("%s not ready", what)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
