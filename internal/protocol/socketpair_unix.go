//go:build unix

package protocol

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Pair creates a connected AF_UNIX socket pair. The returned conn is the
// parent's end; the file is handed to the worker through exec.Cmd.ExtraFiles
// and must be closed by the parent once the worker has started.
func Pair() (net.Conn, *os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}

	parentFile := os.NewFile(uintptr(fds[0]), "pulsar-channel-parent")
	childFile := os.NewFile(uintptr(fds[1]), "pulsar-channel-child")

	conn, err := net.FileConn(parentFile)
	parentFile.Close()
	if err != nil {
		childFile.Close()
		return nil, nil, fmt.Errorf("parent conn: %w", err)
	}
	return conn, childFile, nil
}

// Inherited opens the channel end a worker received as ChildFD.
func Inherited() (net.Conn, error) {
	f := os.NewFile(uintptr(ChildFD), "pulsar-channel")
	if f == nil {
		return nil, fmt.Errorf("channel descriptor %d not available", ChildFD)
	}
	defer f.Close()

	conn, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("channel descriptor %d: %w", ChildFD, err)
	}
	return conn, nil
}
