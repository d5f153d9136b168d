package media_test

import (
	"testing"

	"github.com/book-expert/regen-service/internal/media"
)

func TestIsAudioFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		expected bool
	}{
		{"episode.mp3", true},
		{"interview.WAV", true},
		{"memo.m4a", true},
		{"clip.webm", true},
		{"notes.txt", false},
		{"archive", false},
		{"", false},
	}

	for _, testCase := range tests {
		t.Run(testCase.filename, func(t *testing.T) {
			t.Parallel()

			if got := media.IsAudioFile(testCase.filename); got != testCase.expected {
				t.Errorf("IsAudioFile(%q) = %v, want %v", testCase.filename, got, testCase.expected)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	got := media.SanitizeFilename(" a/b:c*d?.mp3 ")
	if got != "a_b_c_d_.mp3" {
		t.Errorf("Expected %q, got %q", "a_b_c_d_.mp3", got)
	}
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bytes    int64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{15728640, "15.0 MB"},
		{3221225472, "3.0 GB"},
	}

	for _, testCase := range tests {
		if got := media.FormatFileSize(testCase.bytes); got != testCase.expected {
			t.Errorf("FormatFileSize(%d) = %q, want %q", testCase.bytes, got, testCase.expected)
		}
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	if got := media.ContentType(media.FormatMP3); got != "audio/mpeg" {
		t.Errorf("Expected audio/mpeg, got %q", got)
	}

	if got := media.ContentType("midi"); got != "application/octet-stream" {
		t.Errorf("Expected octet-stream fallback, got %q", got)
	}

	if !media.IsResponseFormat(media.FormatWAV) || media.IsResponseFormat("midi") {
		t.Error("IsResponseFormat mismatch")
	}

	if got := media.Extension("Talk.MP3"); got != "mp3" {
		t.Errorf("Expected mp3, got %q", got)
	}
}
