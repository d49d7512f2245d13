package services

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"chatguard-lab/internal/config"
	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

func testValidator(t *testing.T) *FileValidator {
	t.Helper()
	cfg := config.UploadConfig{MaxFileSize: 1024}
	return NewFileValidator(cfg, logger.NewDefault())
}

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("_chat.txt")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	w.Write([]byte("[01/02/2024, 10:15:00] Alice: hi"))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestValidateAcceptsChatExports(t *testing.T) {
	v := testValidator(t)

	cases := []struct {
		name     string
		data     []byte
		fileName string
		mimeType string
	}{
		{"plain text", []byte("[01/02/2024, 10:15:00] Alice: hi"), "chat.txt", "text/plain"},
		{"json export", []byte(`{"type": "personal_chat", "messages": []}`), "result.json", "application/json"},
		{"zip export", zipBytes(t), "export.zip", "application/zip"},
	}
	for _, tc := range cases {
		result, err := v.Validate(tc.data, tc.fileName, tc.mimeType)
		if err != nil {
			t.Errorf("%s: Validate error: %v", tc.name, err)
			continue
		}
		if !result.Valid() {
			t.Errorf("%s: unexpected errors %v", tc.name, result.Errors)
		}
	}
}

func TestValidateHardFailures(t *testing.T) {
	v := testValidator(t)

	cases := []struct {
		name     string
		data     []byte
		fileName string
		wantIn   string
	}{
		{"empty file", nil, "chat.txt", "empty"},
		{"oversized", bytes.Repeat([]byte("a"), 2048), "chat.txt", "exceeds limit"},
		{"dangerous extension", []byte("echo hi"), "run.bat", "dangerous"},
		{"unsupported extension", []byte("data"), "chat.csv", "unsupported"},
		{"executable signature", append([]byte{0x4D, 0x5A}, []byte("MZ padding")...), "chat.txt", "signature"},
		{"zip that is not zip", []byte("just text"), "export.zip", "not a zip"},
		{"json that is not json", []byte("just text"), "result.json", "does not contain JSON"},
		{"txt hiding a zip", zipBytes(t), "chat.txt", "zip archive"},
		{"txt with binary", append([]byte("text"), 0x00, 0x01, 0x02), "chat.txt", "binary"},
	}
	for _, tc := range cases {
		result, err := v.Validate(tc.data, tc.fileName, "")
		if err == nil {
			t.Errorf("%s: expected error, got none", tc.name)
			continue
		}
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected *models.ValidationError, got %T", tc.name, err)
			continue
		}
		found := false
		for _, reason := range result.Errors {
			if strings.Contains(reason, tc.wantIn) {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: no reason containing %q in %v", tc.name, tc.wantIn, result.Errors)
		}
	}
}

func TestValidateCollectsAllFailures(t *testing.T) {
	v := testValidator(t)

	// Oversized executable with a dangerous extension: every hard check
	// reports, not just the first
	data := append([]byte{0x4D, 0x5A}, bytes.Repeat([]byte{0x90}, 2048)...)
	result, err := v.Validate(data, "payload.exe", "")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(result.Errors) < 3 {
		t.Fatalf("expected at least 3 reasons, got %v", result.Errors)
	}
}

func TestValidateMimeDisagreementIsWarning(t *testing.T) {
	v := testValidator(t)

	result, err := v.Validate(zipBytes(t), "export.zip", "text/plain")
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", result.Warnings)
	}
	if !result.Valid() {
		t.Fatalf("warnings must not block: %v", result.Errors)
	}
}
