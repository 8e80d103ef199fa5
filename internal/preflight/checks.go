package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"wildcut/internal/config"
	"wildcut/internal/events"
	"wildcut/internal/logging"
)

// minFreeBytes is the headroom required on the output filesystem before a
// render is allowed to start.
const minFreeBytes = 2 << 30

// CheckDirectoryReadable verifies that the directory exists and can be
// listed.
func CheckDirectoryReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read ok)", path)}
}

// CheckDirectoryWritable verifies that the directory exists and is
// readable and writable.
func CheckDirectoryWritable(name, path string) Result {
	result := CheckDirectoryReadable(name, path)
	if !result.Passed {
		return result
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not writable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minBytes
// available.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s free, need at least %s",
			humanize.IBytes(free), humanize.IBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free", humanize.IBytes(free))}
}

// CheckEventsAPI verifies the NVR API answers within a short timeout.
func CheckEventsAPI(ctx context.Context, cfg *config.Config) Result {
	const name = "Events API"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := events.NewClient(events.Options{
		BaseURL:        cfg.Frigate.BaseURL,
		Headers:        cfg.Frigate.Headers,
		RequestTimeout: 5 * time.Second,
		Logger:         logging.NewNop(),
	})
	if err := client.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeAPIError(err)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Frigate.BaseURL}
}

func summarizeAPIError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (NVR API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (NVR API unreachable)"
	}
	return err.Error()
}
