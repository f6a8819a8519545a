package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Prober inspects a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// ProbeResult is the subset of ffprobe JSON output the media resource reads.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ProbeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"` // video, audio, subtitle, data
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
	StartTime    string            `json:"start_time,omitempty"`
	Duration     string            `json:"duration,omitempty"`
	AvgFrameRate string            `json:"avg_frame_rate,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	SideDataList []ProbeSideData   `json:"side_data_list,omitempty"`
}

type ProbeSideData struct {
	SideDataType string `json:"side_data_type"`
	Rotation     int    `json:"rotation,omitempty"`
}

// rotation returns the display rotation of a video stream. ffprobe reports the
// display-matrix angle counter-clockwise, the legacy rotate tag clockwise.
func (s ProbeStream) rotation() int {
	for _, sd := range s.SideDataList {
		if sd.SideDataType == "Display Matrix" && sd.Rotation != 0 {
			return -sd.Rotation
		}
	}
	if v, ok := s.Tags["rotate"]; ok {
		if deg, err := strconv.Atoi(v); err == nil {
			return deg
		}
	}
	return 0
}

// FFProbe runs the ffprobe binary.
type FFProbe struct {
	// Binary defaults to "ffprobe" on PATH.
	Binary string
}

func (p FFProbe) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

func parseSeconds(s string) (float64, bool) {
	if s == "" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
