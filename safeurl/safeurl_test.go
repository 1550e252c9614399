package safeurl

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateURLSchemes(t *testing.T) {
	tests := []struct {
		url     string
		wantErr error
	}{
		{"ftp://example.com/doc", ErrUnsafeScheme},
		{"file:///etc/passwd", ErrUnsafeScheme},
		{"javascript:alert(1)", ErrUnsafeScheme},
		{"http://127.0.0.1/convert", ErrSSRF},
		{"http://10.1.2.3/convert", ErrSSRF},
		{"http://192.168.1.1/x", ErrSSRF},
		{"http://169.254.169.254/latest/meta-data", ErrSSRF},
		{"http://[::1]/x", ErrSSRF},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateURL(%q) = %v, want %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateURLNoHost(t *testing.T) {
	if err := ValidateURL("http://"); err == nil {
		t.Error("expected error for URL with no host")
	}
}

func TestSafePath(t *testing.T) {
	if _, err := SafePath("/data", "../etc/passwd"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("expected ErrPathTraversal, got %v", err)
	}
	p, err := SafePath("/data", "invoices/2026.html")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p, "/data/") {
		t.Errorf("expected path under /data, got %s", p)
	}
}

func TestValidateFilenameStem(t *testing.T) {
	if err := ValidateFilenameStem("invoice 2026-08.v2"); err != nil {
		t.Errorf("valid stem rejected: %v", err)
	}
	for _, bad := range []string{"", "a/b", "a\x00b", strings.Repeat("x", 300)} {
		if err := ValidateFilenameStem(bad); err == nil {
			t.Errorf("stem %q should be rejected", bad)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil || string(data) != "hello" {
		t.Fatalf("LimitedReadAll = %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("0123456789AB"), 10); err == nil {
		t.Error("expected error when body exceeds limit")
	}
}
