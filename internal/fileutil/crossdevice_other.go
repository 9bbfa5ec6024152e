//go:build !unix

package fileutil

import (
	"errors"
	"os"
)

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr)
}
