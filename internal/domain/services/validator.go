package services

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"chatguard-lab/internal/config"
	"chatguard-lab/internal/domain/models"
	"chatguard-lab/pkg/logger"
)

// dangerousExtensions are file types never accepted as chat exports
var dangerousExtensions = map[string]bool{
	".exe": true, ".dll": true, ".bat": true, ".cmd": true, ".sh": true,
	".ps1": true, ".msi": true, ".scr": true, ".com": true, ".jar": true,
	".vbs": true, ".js": true, ".apk": true, ".dmg": true,
}

// allowedExtensions are the export formats the parsers understand
var allowedExtensions = map[string]bool{
	".txt":  true,
	".json": true,
	".zip":  true,
}

// suspiciousSignatures are magic-byte prefixes of executable or container
// formats that must not appear in a chat export, keyed by a short label
var suspiciousSignatures = []struct {
	label string
	magic []byte
}{
	{"windows executable", []byte{0x4D, 0x5A}},
	{"ELF executable", []byte{0x7F, 0x45, 0x4C, 0x46}},
	{"mach-o executable", []byte{0xFE, 0xED, 0xFA, 0xCE}},
	{"mach-o executable", []byte{0xFE, 0xED, 0xFA, 0xCF}},
	{"mach-o executable", []byte{0xCF, 0xFA, 0xED, 0xFE}},
	{"java class file", []byte{0xCA, 0xFE, 0xBA, 0xBE}},
}

// ValidationResult carries hard failures and non-blocking warnings from one
// validation pass
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether no hard check failed
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// FileValidator runs structural and security checks over an assembled upload
// before it reaches a parser. All hard checks run to completion so the caller
// sees every failure at once.
type FileValidator struct {
	cfg    config.UploadConfig
	logger *logger.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(cfg config.UploadConfig, log *logger.Logger) *FileValidator {
	return &FileValidator{
		cfg:    cfg,
		logger: log.WithComponent("file-validator"),
	}
}

// Validate checks size, extension, MIME/content agreement, and content
// signatures. Hard failures come back as a single ValidationError; warnings
// never block.
func (v *FileValidator) Validate(data []byte, fileName, mimeType string) (*ValidationResult, error) {
	result := &ValidationResult{}

	if len(data) == 0 {
		result.Errors = append(result.Errors, "file is empty")
	}
	if int64(len(data)) > v.cfg.MaxFileSize {
		result.Errors = append(result.Errors,
			fmt.Sprintf("file size %d exceeds limit of %d bytes", len(data), v.cfg.MaxFileSize))
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if dangerousExtensions[ext] {
		result.Errors = append(result.Errors, fmt.Sprintf("dangerous file extension %s", ext))
	} else if !allowedExtensions[ext] {
		result.Errors = append(result.Errors, fmt.Sprintf("unsupported file extension %q", ext))
	}

	for _, sig := range suspiciousSignatures {
		if bytes.HasPrefix(data, sig.magic) {
			result.Errors = append(result.Errors, fmt.Sprintf("content matches %s signature", sig.label))
			break
		}
	}

	v.crossCheckContent(data, ext, mimeType, result)

	if !result.Valid() {
		v.logger.Warn().
			Str("file_name", fileName).
			Strs("errors", result.Errors).
			Msg("file validation failed")
		return result, &models.ValidationError{Reasons: result.Errors}
	}

	return result, nil
}

// crossCheckContent verifies that the bytes plausibly match the declared
// extension and MIME type. Disagreements between declared MIME and extension
// are warnings; content that contradicts the extension is a hard failure.
func (v *FileValidator) crossCheckContent(data []byte, ext, mimeType string, result *ValidationResult) {
	if len(data) == 0 {
		return
	}

	isZip := bytes.HasPrefix(data, []byte{0x50, 0x4B})
	trimmed := bytes.TrimLeft(data, " \t\r\n\xEF\xBB\xBF")
	isJSON := len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')

	switch ext {
	case ".zip":
		if !isZip {
			result.Errors = append(result.Errors, "file has .zip extension but is not a zip archive")
		}
	case ".json":
		if !isJSON {
			result.Errors = append(result.Errors, "file has .json extension but does not contain JSON")
		}
	case ".txt":
		if isZip {
			result.Errors = append(result.Errors, "file has .txt extension but contains a zip archive")
		}
		if !isMostlyText(data) {
			result.Errors = append(result.Errors, "file has .txt extension but contains binary data")
		}
	}

	if mimeType != "" {
		declared := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
		switch {
		case isZip && declared != "application/zip" && declared != "application/x-zip-compressed" && declared != "application/octet-stream":
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("declared MIME type %q does not match zip content", declared))
		case isJSON && declared != "application/json" && declared != "text/plain" && declared != "application/octet-stream":
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("declared MIME type %q does not match JSON content", declared))
		}
	}
}

// isMostlyText samples up to 4KB and reports whether it looks like text
func isMostlyText(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	binary := 0
	for _, b := range sample {
		if b == 0 {
			return false
		}
		if b < 0x09 || (b > 0x0D && b < 0x20) {
			binary++
		}
	}
	return float64(binary)/float64(len(sample)) < 0.05
}
