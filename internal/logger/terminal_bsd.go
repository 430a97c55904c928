//go:build darwin || freebsd || openbsd || netbsd

package logger

import "golang.org/x/sys/unix"

const ioctlReadTermios = unix.TIOCGETA
