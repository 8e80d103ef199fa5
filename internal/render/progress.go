package render

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Progress is one callback payload while the transcoder runs.
type Progress struct {
	Phase   string  `json:"phase"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

const stderrTailLimit = 200

// parseProgressStream reads the transcoder's -progress key=value stream and
// invokes onProgress as out_time advances. Non key=value lines (the
// transcoder's own diagnostics, since stderr is merged) are kept in a
// bounded tail for failure reporting.
func parseProgressStream(r io.Reader, phase string, totalOutSeconds float64, onProgress func(Progress)) []string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var tail []string
	speed := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			tail = append(tail, line)
			if len(tail) > stderrTailLimit {
				tail = tail[1:]
			}
			continue
		}
		switch key {
		case "speed":
			speed = value
		case "out_time_ms":
			// Despite the name, the value is in microseconds.
			micros, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				continue
			}
			if onProgress == nil {
				continue
			}
			elapsed := float64(micros) / 1e6
			percent := 0.0
			if totalOutSeconds > 0 {
				percent = 100 * elapsed / totalOutSeconds
				if percent > 100 {
					percent = 100
				}
				if percent < 0 {
					percent = 0
				}
			}
			message := "rendered " + formatDuration(elapsed)
			if speed != "" {
				message += " at " + speed
			}
			onProgress(Progress{Phase: phase, Percent: percent, Message: message})
		}
	}
	return tail
}

func formatDuration(seconds float64) string {
	total := int64(seconds + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return pad2(h) + ":" + pad2(m) + ":" + pad2(s)
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}
