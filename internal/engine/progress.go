package engine

import (
	"regexp"
	"strconv"
)

// Pre-compiled regexes for mining the transcoder's stderr stream. The stream
// interleaves metadata banners ("Duration: ..., bitrate: ...") with carriage-
// return separated status lines ("... time=00:00:04.20 ...").
var (
	reClipDuration = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+(?:\.\d+)?)`)
	reProgressTime = regexp.MustCompile(`\btime=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	reBitrate      = regexp.MustCompile(`bitrate[:=]\s*(\d+(?:\.\d+)?\s*[kM]?b(?:its?)?/s)`)
)

// ParseClipDuration extracts the total input duration in seconds from a
// metadata banner line.
func ParseClipDuration(line string) (float64, bool) {
	return parseClock(reClipDuration.FindStringSubmatch(line))
}

// ParseProgressTime extracts the processed position in seconds from a status
// line.
func ParseProgressTime(line string) (float64, bool) {
	return parseClock(reProgressTime.FindStringSubmatch(line))
}

// ParseBitrate extracts a bitrate annotation such as "128 kb/s" from a log
// line.
func ParseBitrate(line string) (string, bool) {
	match := reBitrate.FindStringSubmatch(line)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// parseClock converts an HH:MM:SS.ss submatch into seconds.
func parseClock(match []string) (float64, bool) {
	if match == nil {
		return 0, false
	}

	hours, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(match[3], 64)
	if err != nil {
		return 0, false
	}

	return hours*3600 + minutes*60 + seconds, true
}
