// Package testutil starts the containers behind the remote store drivers.
package testutil

import (
	"context"
	"errors"

	"github.com/testcontainers/testcontainers-go"
)

// abort terminates a half-initialized container and reports both failures.
func abort(ctx context.Context, container testcontainers.Container, err error) error {
	if terr := container.Terminate(ctx); terr != nil {
		return errors.Join(err, terr)
	}
	return err
}
