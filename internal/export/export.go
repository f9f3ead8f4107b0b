// Package export encodes session summaries for archival outside the server.
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/crc64nvme"
	"github.com/wolfeidau/planpoker/internal/models"
	"gopkg.in/yaml.v3"
)

// DocumentVersion is the current export document version.
const DocumentVersion = 1

// ErrChecksumMismatch is returned when decoded content does not match its
// recorded checksum.
var ErrChecksumMismatch = errors.New("export checksum mismatch")

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// zstd frame magic number
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Document is the exported form of a session.
type Document struct {
	Version    int                    `json:"version" yaml:"version"`
	ExportedAt time.Time              `json:"exportedAt" yaml:"exportedAt"`
	Summary    *models.SessionSummary `json:"summary" yaml:"summary"`
}

// NewDocument wraps a summary for export.
func NewDocument(summary *models.SessionSummary, exportedAt time.Time) *Document {
	return &Document{
		Version:    DocumentVersion,
		ExportedAt: exportedAt.UTC(),
		Summary:    summary,
	}
}

// Options controls encoding.
type Options struct {
	Format   Format
	Compress bool
}

// FormatFromPath derives options from a file name such as summary.yaml.zst.
func FormatFromPath(path string) (Options, error) {
	opts := Options{}
	name := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(name, ".zst") {
		opts.Compress = true
		name = strings.TrimSuffix(name, ".zst")
	}

	switch filepath.Ext(name) {
	case ".json":
		opts.Format = FormatJSON
	case ".yaml", ".yml":
		opts.Format = FormatYAML
	default:
		return opts, fmt.Errorf("unsupported export file extension: %s", path)
	}
	return opts, nil
}

// Encode renders the document in the given format.
func Encode(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

// Decode parses a document in the given format.
func Decode(data []byte, format Format) (*Document, error) {
	doc := &Document{}
	switch format {
	case FormatJSON, "":
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
	if doc.Version > DocumentVersion {
		return nil, fmt.Errorf("unsupported export document version %d", doc.Version)
	}
	return doc, nil
}

// Checksum computes the CRC64-NVME checksum of the encoded document.
func Checksum(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}

// Write encodes the document to w and returns the checksum of the
// uncompressed encoding.
func Write(w io.Writer, doc *Document, opts Options) (uint64, error) {
	data, err := Encode(doc, opts.Format)
	if err != nil {
		return 0, err
	}
	checksum := Checksum(data)

	if !opts.Compress {
		if _, err := w.Write(data); err != nil {
			return 0, fmt.Errorf("failed to write export: %w", err)
		}
		return checksum, nil
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("failed to create encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return 0, fmt.Errorf("failed to compress: %w", err)
	}
	// Close flushes the final frame
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("failed to close encoder: %w", err)
	}
	return checksum, nil
}

// Read decodes a document written by Write. Compression is detected from the
// content. The checksum of the uncompressed encoding is returned alongside.
func Read(r io.Reader, format Format) (*Document, uint64, error) {
	br := bufio.NewReader(r)

	var src io.Reader = br
	if magic, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(magic, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create decoder: %w", err)
		}
		defer dec.Close()
		src = dec
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read export: %w", err)
	}

	doc, err := Decode(data, format)
	if err != nil {
		return nil, 0, err
	}
	return doc, Checksum(data), nil
}
