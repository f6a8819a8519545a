// Package system holds host-level helpers: resource limits, worker sizing,
// encoder detection and input discovery.
package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const openFilesLimit = 2048

// ErrNoMatchingFile is returned by FindLatestFile when nothing matches.
var ErrNoMatchingFile = errors.New("no matching file")

// InitResourceLimits raises the open files limit; every decoded source keeps
// an ffmpeg pipe open.
func InitResourceLimits(logger *slog.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("failed to read open files limit", slog.String("error", err.Error()))
		return
	}

	rLimit.Cur = openFilesLimit
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("failed to raise open files limit", slog.String("error", err.Error()))
		return
	}
	logger.Debug("open files limit raised", slog.Uint64("limit", uint64(rLimit.Cur)))
}

// DefaultWorkers is the number of frames rendered concurrently when the
// configuration leaves it at zero: one per logical CPU.
func DefaultWorkers(ctx context.Context) int {
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// AvailableMemory reports the bytes the OS considers available, or 0 when it
// cannot tell.
func AvailableMemory(ctx context.Context) uint64 {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0
	}
	return vm.Available
}

// ClampWorkers limits workers so that frames in flight, each holding
// frameBytes several times over, fit in half of the available memory.
func ClampWorkers(workers int, frameBytes, available uint64) int {
	if workers < 1 {
		workers = 1
	}
	if available == 0 || frameBytes == 0 {
		return workers
	}
	// Output frame, two decoded sources and two processed layers.
	perWorker := frameBytes * 5
	limit := int(available / 2 / perWorker)
	if limit < 1 {
		limit = 1
	}
	if workers > limit {
		return limit
	}
	return workers
}

// FindLatestFile returns the most recently modified file in dir whose
// extension is one of exts (with dot, case-insensitive).
func FindLatestFile(dir string, exts ...string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	exts = lo.Map(exts, func(e string, _ int) string { return strings.ToLower(e) })

	var latestFile string
	var latestTime time.Time
	for _, f := range files {
		if f.IsDir() || !hasExt(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if latestFile == "" || info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("%w in %s (%s)", ErrNoMatchingFile, dir, strings.Join(exts, ", "))
	}
	return latestFile, nil
}

func hasExt(name string, exts []string) bool {
	return lo.Contains(exts, strings.ToLower(filepath.Ext(name)))
}

// Hardware encoders in order of preference; libx264 is the fallback.
var preferredEncoders = []string{"h264_videotoolbox", "h264_nvenc"}

// EncoderLister returns the output of `ffmpeg -encoders`.
type EncoderLister func(ctx context.Context) (string, error)

// FFmpegEncoders lists encoders by running the ffmpeg binary at bin.
func FFmpegEncoders(bin string) EncoderLister {
	return func(ctx context.Context) (string, error) {
		out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-encoders").CombinedOutput()
		return string(out), err
	}
}

// GetBestH264Encoder picks a hardware H.264 encoder when ffmpeg has one.
func GetBestH264Encoder(ctx context.Context, list EncoderLister) string {
	out, err := list(ctx)
	if err != nil {
		return "libx264"
	}
	for _, enc := range preferredEncoders {
		if strings.Contains(out, enc) {
			return enc
		}
	}
	return "libx264"
}
