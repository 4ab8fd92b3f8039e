package iostream

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
	"golang.org/x/sys/unix"
)

func ioctlFIONREAD(fd int, n *int) error {
	var v int32
	if err := ioctl.Ioctl(uintptr(fd), unix.FIONREAD, uintptr(unsafe.Pointer(&v))); err != nil {
		return err
	}
	*n = int(v)
	return nil
}
