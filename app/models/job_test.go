package models

import "testing"

func TestIsValidJobKind(t *testing.T) {
	valid := []string{JobKindVideo, JobKindPhotoClean, JobKindPhotoCaptions, JobKindFaceswap, JobKindCarouselMultiply}
	for _, kind := range valid {
		if !IsValidJobKind(kind) {
			t.Errorf("expected %q to be a valid kind", kind)
		}
	}
	for _, kind := range []string{"", "video_clean", "Video", "audio"} {
		if IsValidJobKind(kind) {
			t.Errorf("expected %q to be invalid", kind)
		}
	}
}

func TestCanTransitionJobStatus(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{JobStatusPending, JobStatusUploading, true},
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusUploading, JobStatusProcessing, true},
		{JobStatusUploading, JobStatusFailed, true},
		{JobStatusUploading, JobStatusCompleted, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusFailed, JobStatusCompleted, false},
		{JobStatusFailed, JobStatusPending, false},
	}

	for _, tt := range tests {
		if got := CanTransitionJobStatus(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionJobStatus(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminalJobStatus(t *testing.T) {
	if !IsTerminalJobStatus(JobStatusCompleted) || !IsTerminalJobStatus(JobStatusFailed) {
		t.Error("completed and failed must be terminal")
	}
	if IsTerminalJobStatus(JobStatusPending) || IsTerminalJobStatus(JobStatusProcessing) {
		t.Error("pending and processing must not be terminal")
	}
}
