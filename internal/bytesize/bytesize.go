// Package bytesize provides a byte count that reads and writes human sizes
// ("16MiB", "512 KB", "1048576") in configuration files.
package bytesize

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes.
type ByteSize uint64

// Common sizes
const (
	B   ByteSize = 1
	KB  ByteSize = humanize.KByte
	MB  ByteSize = humanize.MByte
	GB  ByteSize = humanize.GByte
	KiB ByteSize = humanize.KiByte
	MiB ByteSize = humanize.MiByte
	GiB ByteSize = humanize.GiByte
)

// Parse reads a human size. Decimal (KB, MB) and binary (KiB, Ki, MiB)
// units are accepted, case-insensitively. A bare number is bytes.
func Parse(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = n
	return nil
}

// MarshalText implements encoding.TextMarshaler so saved configs keep the
// human form.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// String renders the size with binary units, e.g. "16 MiB".
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Int64 returns the size as an int64.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
