package document

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// CompressField deflates a field value and encodes it for storage as a
// stored-only text field. Empty input stays empty so absent fields cost
// nothing in the index.
func CompressField(value string) (string, error) {
	if value == "" {
		return "", nil
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(value)); err != nil {
		return "", fmt.Errorf("compress field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("compress field: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecompressField reverses CompressField.
func DecompressField(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode field: %w", err)
	}

	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("inflate field: %w", err)
	}
	defer r.Close()

	value, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("inflate field: %w", err)
	}

	return string(value), nil
}
