package dock

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/json"
	"strings"
	"testing"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeSurfaceData(t *testing.T) {
	raw, err := json.Marshal(validSurfaceData())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	t.Run("raw JSON", func(t *testing.T) {
		s, err := DecodeSurfaceData(raw)
		if err != nil {
			t.Fatalf("DecodeSurfaceData() error: %v", err)
		}
		if s.Name != "receptor" || s.Descriptors.Len() != 2 {
			t.Errorf("decoded %q with %d patches, want receptor with 2", s.Name, s.Descriptors.Len())
		}
	})

	t.Run("gzip-compressed JSON", func(t *testing.T) {
		s, err := DecodeSurfaceData(gzipBytes(t, raw))
		if err != nil {
			t.Fatalf("DecodeSurfaceData() error: %v", err)
		}
		if s.Mesh.VertexCount() != 4 {
			t.Errorf("VertexCount() = %d, want 4", s.Mesh.VertexCount())
		}
	})

	t.Run("zlib-compressed JSON", func(t *testing.T) {
		s, err := DecodeSurfaceData(zlibBytes(t, raw))
		if err != nil {
			t.Fatalf("DecodeSurfaceData() error: %v", err)
		}
		if s.Name != "receptor" {
			t.Errorf("Name = %q, want receptor", s.Name)
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		_, err := DecodeSurfaceData(nil)
		if err == nil || !strings.Contains(err.Error(), "empty data") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("unrecognized bytes", func(t *testing.T) {
		_, err := DecodeSurfaceData([]byte("not a surface at all"))
		if err == nil || !strings.Contains(err.Error(), "unknown format") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("gzip magic with corrupt body", func(t *testing.T) {
		_, err := DecodeSurfaceData([]byte{0x1f, 0x8b, 0xff, 0x00, 0x01})
		if err == nil || !strings.Contains(err.Error(), "gzip") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("gzip of empty body", func(t *testing.T) {
		_, err := DecodeSurfaceData(gzipBytes(t, nil))
		if err == nil || !strings.Contains(err.Error(), "decoded JSON payload is empty") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("compressed but malformed JSON", func(t *testing.T) {
		_, err := DecodeSurfaceData(gzipBytes(t, []byte(`{"name": "broken"`)))
		if err == nil || !strings.Contains(err.Error(), "parsing JSON") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("valid JSON with inconsistent export", func(t *testing.T) {
		sd := validSurfaceData()
		sd.Descriptors = sd.Descriptors[:1]
		bad, err := json.Marshal(sd)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		_, err = DecodeSurfaceData(bad)
		if err == nil || !strings.Contains(err.Error(), "2 patches but 1 descriptors") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestIsGzip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"gzip magic", []byte{0x1f, 0x8b, 0x08}, true},
		{"json", []byte(`{"name":"x"}`), false},
		{"one byte", []byte{0x1f}, false},
		{"empty", nil, false},
		{"zlib header", []byte{0x78, 0x9c}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGzip(tt.data); got != tt.want {
				t.Errorf("IsGzip(%v) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func BenchmarkDecodeSurfaceData_Gzip(b *testing.B) {
	raw, err := json.Marshal(validSurfaceData())
	if err != nil {
		b.Fatalf("marshal: %v", err)
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		b.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		b.Fatalf("gzip close: %v", err)
	}
	payload := buf.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeSurfaceData(payload); err != nil {
			b.Fatalf("DecodeSurfaceData: %v", err)
		}
	}
}
