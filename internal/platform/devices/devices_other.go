//go:build !linux && !windows

package devices

import (
	"context"
	"errors"
)

func count(context.Context, string) (int, error) {
	return 0, errors.New("display adapter enumeration is not supported on this platform; use signal.source=file")
}
