package dock

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
)

// DecodeSurfaceData decodes a surface payload from the formats the
// segmentation exporter emits:
// - Raw JSON (starts with '{')
// - Gzip-compressed JSON (the usual MQTT format)
// - Zlib-compressed JSON without gzip wrapper
func DecodeSurfaceData(data []byte) (*Surface, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var jsonBytes []byte
	var err error

	if data[0] == '{' {
		jsonBytes = data
	} else if IsGzip(data) {
		jsonBytes, err = inflateGzip(data)
		if err != nil {
			return nil, fmt.Errorf("decompressing gzip data: %w", err)
		}
	} else {
		jsonBytes, err = inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not JSON, gzip, or zlib-compressed")
		}
	}

	if len(jsonBytes) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}

	sd, err := ParseSurfaceJSON(jsonBytes)
	if err != nil {
		return nil, err
	}
	return BuildSurface(sd)
}

// IsGzip checks if data starts with the gzip magic bytes.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// inflateGzip decompresses gzip-compressed data.
func inflateGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			// Already have the data; nothing useful to do with a close error.
			_ = closeErr
		}
	}()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing gzip data: %w", err)
	}

	return decompressed, nil
}

// inflateZlib decompresses zlib-compressed data.
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}

	return decompressed, nil
}
