//go:build !unix

package ops

import "runtime"

func osRelease() (string, error) {
	return runtime.GOOS, nil
}
