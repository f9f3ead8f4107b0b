package export

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ChecksumSuffix names the sidecar file holding a file export's checksum.
const ChecksumSuffix = ".crc64"

// WriteFile writes the document to path, choosing format and compression from
// the file name, and records the checksum in a sidecar file.
func WriteFile(path string, doc *Document) (uint64, error) {
	opts, err := FormatFromPath(path)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create export: %w", err)
	}

	checksum, err := Write(f, doc, opts)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("failed to close export: %w", err)
	}

	sidecar := path + ChecksumSuffix
	if err := os.WriteFile(sidecar, []byte(FormatChecksum(checksum)+"\n"), 0o600); err != nil {
		return 0, fmt.Errorf("failed to write checksum: %w", err)
	}

	log.Debug().
		Str("path", path).
		Str("format", string(opts.Format)).
		Bool("compressed", opts.Compress).
		Str("checksum", FormatChecksum(checksum)).
		Msg("Export written")

	return checksum, nil
}

// ReadFile reads an export and verifies it against its sidecar checksum when
// one exists.
func ReadFile(path string) (*Document, error) {
	opts, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	doc, checksum, err := Read(f, opts.Format)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path + ChecksumSuffix)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checksum: %w", err)
	}

	want, err := parseChecksum(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, err
	}
	if want != checksum {
		return nil, fmt.Errorf("%w: want %s got %s", ErrChecksumMismatch, FormatChecksum(want), FormatChecksum(checksum))
	}
	return doc, nil
}

// FormatChecksum renders a checksum the way sidecar files store it.
func FormatChecksum(c uint64) string {
	return fmt.Sprintf("%016x", c)
}

func parseChecksum(s string) (uint64, error) {
	c, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid checksum %q: %w", s, err)
	}
	return c, nil
}
