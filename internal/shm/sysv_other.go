//go:build !linux

package shm

func openSysV(string, int) (Segment, error) {
	return nil, ErrUnsupported
}
