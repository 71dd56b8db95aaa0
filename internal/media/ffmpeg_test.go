package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/utils"
)

// fakeFFmpeg 记录参数并把最后一个参数当作输出文件写入
func fakeFFmpeg(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := "#!/bin/sh\n" + extra + "\necho \"$@\" > " + argsFile + "\nfor last; do :; done\necho data > \"$last\"\n"
	path := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path, argsFile
}

func TestExtractAudio(t *testing.T) {
	bin, argsFile := fakeFFmpeg(t, "")
	f := NewFFmpeg(&config.FFmpegConfig{BinaryPath: bin, AudioQuality: "192", Timeout: 10}, zaptest.NewLogger(t))

	dest := filepath.Join(t.TempDir(), "out.mp3")
	got, err := f.ExtractAudio(context.Background(), "/tmp/in.mp4", dest)
	if err != nil {
		t.Fatalf("ExtractAudio: %v", err)
	}
	if got != dest {
		t.Fatalf("path=%q", got)
	}
	args, _ := os.ReadFile(argsFile)
	for _, want := range []string{"-i /tmp/in.mp4", "-vn", "-acodec libmp3lame", "-b:a 192k"} {
		if !strings.Contains(string(args), want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
}

func TestExtractFrame(t *testing.T) {
	bin, argsFile := fakeFFmpeg(t, "")
	f := NewFFmpeg(&config.FFmpegConfig{BinaryPath: bin, Timeout: 10}, zaptest.NewLogger(t))

	dest := filepath.Join(t.TempDir(), "frame.jpg")
	if _, err := f.ExtractFrame(context.Background(), "/tmp/in.mp4", 12.5, dest); err != nil {
		t.Fatalf("ExtractFrame: %v", err)
	}
	args, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(args), "-ss 12.500 -i /tmp/in.mp4 -frames:v 1") {
		t.Fatalf("unexpected args %q", args)
	}
}

func TestFFmpeg_Failures(t *testing.T) {
	bin, _ := fakeFFmpeg(t, "echo 'Invalid data found when processing input' >&2; exit 1")
	f := NewFFmpeg(&config.FFmpegConfig{BinaryPath: bin, Timeout: 10}, zaptest.NewLogger(t))
	_, err := f.ExtractAudio(context.Background(), "in", filepath.Join(t.TempDir(), "o.mp3"))
	if !errors.Is(err, utils.ErrFFmpegFailed) || !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("err=%v", err)
	}

	slow, _ := fakeFFmpeg(t, "exec sleep 5")
	f = NewFFmpeg(&config.FFmpegConfig{BinaryPath: slow, Timeout: 1}, zaptest.NewLogger(t))
	if _, err := f.ExtractFrame(context.Background(), "in", 1, filepath.Join(t.TempDir(), "o.jpg")); !errors.Is(err, utils.ErrTimeout) {
		t.Fatalf("err=%v, want ErrTimeout", err)
	}

	f = NewFFmpeg(&config.FFmpegConfig{BinaryPath: filepath.Join(t.TempDir(), "missing")}, zaptest.NewLogger(t))
	if _, err := f.ExtractAudio(context.Background(), "in", "out.mp3"); !errors.Is(err, utils.ErrFFmpegFailed) {
		t.Fatalf("err=%v", err)
	}
}
