// Package media provides helpers for media intake: extension checks, filename
// sanitizing, size formatting and response-format content types.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	dot                    = "."
	invalidCharReplacement = "_"
	defaultContentType     = "application/octet-stream"
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Size formatting constants.
const (
	formatGB    = "%.1f GB"
	formatMB    = "%.1f MB"
	formatKB    = "%.1f KB"
	formatBytes = "%d B"
)

// Response formats accepted by the synthesis service.
const (
	FormatMP3  = "mp3"
	FormatWAV  = "wav"
	FormatOpus = "opus"
	FormatFLAC = "flac"
	FormatAAC  = "aac"
	FormatPCM  = "pcm"
)

var audioExtensions = map[string]struct{}{
	".aac":  {},
	".flac": {},
	".m4a":  {},
	".mp3":  {},
	".ogg":  {},
	".wav":  {},
	".webm": {},
}

var contentTypes = map[string]string{
	FormatMP3:  "audio/mpeg",
	FormatWAV:  "audio/wav",
	FormatOpus: "audio/ogg",
	FormatFLAC: "audio/flac",
	FormatAAC:  "audio/aac",
	FormatPCM:  "audio/pcm",
}

var filenameReplacer = strings.NewReplacer(
	"<", invalidCharReplacement,
	">", invalidCharReplacement,
	":", invalidCharReplacement,
	"\"", invalidCharReplacement,
	"/", invalidCharReplacement,
	"\\", invalidCharReplacement,
	"|", invalidCharReplacement,
	"?", invalidCharReplacement,
	"*", invalidCharReplacement,
)

// IsAudioFile checks if a filename has a common audio file extension.
func IsAudioFile(filename string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(filename))]

	return ok
}

// Extension returns the lower-case file extension without the leading dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), dot))
}

// SanitizeFilename replaces characters that are invalid in most filesystems and
// in object store keys.
func SanitizeFilename(filename string) string {
	return filenameReplacer.Replace(strings.TrimSpace(filename))
}

// FormatFileSize formats a size in a human-readable string (e.g., "1.2 GB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsResponseFormat reports whether format is accepted by the synthesis service.
func IsResponseFormat(format string) bool {
	_, ok := contentTypes[format]

	return ok
}

// ContentType maps a response format to its MIME type.
func ContentType(format string) string {
	contentType, ok := contentTypes[format]
	if !ok {
		return defaultContentType
	}

	return contentType
}
