package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/creatorengine/creatorengine/app/models"
)

// Settings is the closed set of per-kind job settings. Every kind carries its
// own schema; DecodeSettings and the registry switch over the concrete types
// so a new kind cannot be added without handling it everywhere.
type Settings interface {
	Kind() string
	Validate() error
}

// VideoSettings drives the video uniquification worker.
type VideoSettings struct {
	BrightnessRange [2]float64 `json:"brightness_range"`
	SaturationRange [2]float64 `json:"saturation_range"`
	HueRange        [2]float64 `json:"hue_range"`
	CropPxRange     [2]float64 `json:"crop_px_range"`
	SpeedRange      [2]float64 `json:"speed_range"`
	RemoveWatermark bool       `json:"remove_watermark"`
	AddWatermark    bool       `json:"add_watermark"`
	WatermarkPath   string     `json:"watermark_path,omitempty"`
}

func (VideoSettings) Kind() string { return models.JobKindVideo }

func (s VideoSettings) Validate() error {
	if s.AddWatermark && s.WatermarkPath == "" {
		return &ValidationError{Reason: "watermark_path is required when add_watermark is set"}
	}
	return nil
}

// DefaultVideoSettings returns the transform ranges applied when a request
// carries none.
func DefaultVideoSettings() VideoSettings {
	return VideoSettings{
		BrightnessRange: [2]float64{-0.03, 0.03},
		SaturationRange: [2]float64{0.97, 1.03},
		HueRange:        [2]float64{-5, 5},
		CropPxRange:     [2]float64{1, 3},
		SpeedRange:      [2]float64{0.98, 1.02},
	}
}

// PhotoCleanSettings drives single-photo cleaning (metadata strip + subtle
// pixel transforms).
type PhotoCleanSettings struct {
	BrightnessRange [2]float64 `json:"brightness_range"`
	SaturationRange [2]float64 `json:"saturation_range"`
	HueRange        [2]float64 `json:"hue_range"`
	CropPxRange     [2]float64 `json:"crop_px_range"`
	StripMetadata   bool       `json:"strip_metadata"`
}

func (PhotoCleanSettings) Kind() string { return models.JobKindPhotoClean }

func (s PhotoCleanSettings) Validate() error { return nil }

// CaptionPhoto pairs one slide photo with its caption text.
type CaptionPhoto struct {
	FilePath string `json:"file_path"`
	Caption  string `json:"caption"`
}

// CaptionSettings drives photo caption rendering (carousel slides).
type CaptionSettings struct {
	Captions      []string       `json:"captions"`
	Photos        []CaptionPhoto `json:"photos,omitempty"`
	FontSize      string         `json:"font_size"`
	Position      string         `json:"position"`
	GenerateVideo bool           `json:"generate_video"`
	CaptionSource string         `json:"caption_source"`
	AINiche       string         `json:"ai_niche,omitempty"`
	AIStyle       string         `json:"ai_style,omitempty"`
}

func (CaptionSettings) Kind() string { return models.JobKindPhotoCaptions }

func (s CaptionSettings) Validate() error {
	if len(s.Captions) == 0 && len(s.Photos) == 0 {
		return &ValidationError{Reason: "at least one caption or photo is required"}
	}
	switch s.FontSize {
	case "", "small", "medium", "large":
	default:
		return &ValidationError{Reason: "font_size must be small, medium or large"}
	}
	switch s.Position {
	case "", "top", "center", "bottom":
	default:
		return &ValidationError{Reason: "position must be top, center or bottom"}
	}
	switch s.CaptionSource {
	case "", "manual", "ai":
	default:
		return &ValidationError{Reason: "caption_source must be manual or ai"}
	}
	return nil
}

// FaceswapSettings drives face replacement on a video or image source.
type FaceswapSettings struct {
	FaceID       string `json:"face_id"`
	FacePath     string `json:"face_path"`
	SourceType   string `json:"source_type"`
	SwapOnly     bool   `json:"swap_only"`
	VariantCount int    `json:"variant_count"`
}

func (FaceswapSettings) Kind() string { return models.JobKindFaceswap }

func (s FaceswapSettings) Validate() error {
	if s.FacePath == "" {
		return &ValidationError{Reason: "face_path is required"}
	}
	if s.SourceType != "video" && s.SourceType != "image" {
		return &ValidationError{Reason: "source_type must be video or image"}
	}
	return nil
}

// MultiplySettings drives carousel multiplication from a completed
// photo-captions parent job.
type MultiplySettings struct {
	SourceJobUUID string `json:"source_job_id"`
	SlideCount    int    `json:"slide_count"`
	CopyCount     int    `json:"copy_count"`
}

func (MultiplySettings) Kind() string { return models.JobKindCarouselMultiply }

func (s MultiplySettings) Validate() error {
	if s.SourceJobUUID == "" {
		return &ValidationError{Reason: "source_job_id is required"}
	}
	if s.CopyCount < 2 {
		return &ValidationError{Reason: "copy_count must be at least 2"}
	}
	return nil
}

// DecodeSettings parses a raw settings document for a job kind. The switch is
// exhaustive over the supported kinds.
func DecodeSettings(kind string, raw []byte) (Settings, error) {
	switch kind {
	case models.JobKindVideo:
		s := DefaultVideoSettings()
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, &ValidationError{Reason: "invalid video settings: " + err.Error()}
			}
		}
		return s, nil
	case models.JobKindPhotoClean:
		s := PhotoCleanSettings{StripMetadata: true}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, &ValidationError{Reason: "invalid photo clean settings: " + err.Error()}
			}
		}
		return s, nil
	case models.JobKindPhotoCaptions:
		var s CaptionSettings
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &ValidationError{Reason: "invalid caption settings: " + err.Error()}
		}
		return s, nil
	case models.JobKindFaceswap:
		var s FaceswapSettings
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &ValidationError{Reason: "invalid faceswap settings: " + err.Error()}
		}
		return s, nil
	case models.JobKindCarouselMultiply:
		var s MultiplySettings
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &ValidationError{Reason: "invalid multiply settings: " + err.Error()}
		}
		return s, nil
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown job kind %q", kind)}
	}
}

// EncodeSettings serializes settings for storage on the job row.
func EncodeSettings(s Settings) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
