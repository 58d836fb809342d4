package recaptcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
)

// Format is an audio container format.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

const (
	DEFAULT_FFMPEG_BINARY = "ffmpeg"
	RECOGNIZER_SAMPLE_RATE = 16000
)

// AudioTranscoder converts an audio file to another format and returns the new path.
type AudioTranscoder interface {
	Transcode(ctx context.Context, in string, from, to Format) (string, error)
}

// FFmpegTranscoder shells out to ffmpeg. The output is written next to the input.
type FFmpegTranscoder struct {
	binary     string
	sampleRate int
	channels   int
}

func NewFFmpegTranscoder(binary string) *FFmpegTranscoder {
	if binary == "" {
		binary = DEFAULT_FFMPEG_BINARY
	}
	return &FFmpegTranscoder{
		binary:     binary,
		sampleRate: RECOGNIZER_SAMPLE_RATE,
		channels:   1,
	}
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, in string, from, to Format) (string, error) {
	if from == to {
		return "", fmt.Errorf("ffmpeg: nothing to do for %s -> %s", from, to)
	}

	out := strings.TrimSuffix(in, filepath.Ext(in)) + "." + string(to)

	cmd := exec.CommandContext(ctx, t.binary, t.args(in, out, from, to)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(out)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return "", fmt.Errorf("ffmpeg: %w", err)
	}

	if to == FormatWAV {
		if err := validateWAV(out); err != nil {
			os.Remove(out)
			return "", fmt.Errorf("ffmpeg: %w", err)
		}
	}

	return out, nil
}

func (t *FFmpegTranscoder) args(in, out string, from, to Format) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-f", string(from), "-i", in}
	if to == FormatWAV {
		args = append(args,
			"-ac", strconv.Itoa(t.channels),
			"-ar", strconv.Itoa(t.sampleRate),
			"-c:a", "pcm_s16le",
		)
	}
	return append(args, out)
}

// validateWAV checks that path holds a readable, non-empty RIFF/WAVE stream.
func validateWAV(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return errors.New("output is not a valid wav file")
	}

	if decoder.SampleRate == 0 || decoder.NumChans == 0 {
		return errors.New("wav output has no audio format")
	}

	if err := decoder.FwdToPCM(); err != nil {
		return fmt.Errorf("read wav data: %w", err)
	}
	if decoder.PCMLen() == 0 {
		return errors.New("wav output holds no audio")
	}
	return nil
}
