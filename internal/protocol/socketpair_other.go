//go:build !unix

package protocol

import (
	"errors"
	"net"
	"os"
)

var errUnsupported = errors.New("result channel requires a unix platform")

func Pair() (net.Conn, *os.File, error) {
	return nil, nil, errUnsupported
}

func Inherited() (net.Conn, error) {
	return nil, errUnsupported
}
