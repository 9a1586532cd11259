//go:build !unix && !windows

package adbhost

func isConnRefused(err error) bool {
	return false
}
