package ffmpeg

import "strings"

// ParseLogLevel splits a `-loglevel level+...` line into level and message.
// Both "[error] msg" and "[h264 @ 0x55d] [warning] msg" forms are handled; the
// component prefix is kept in the message. Unrecognised lines are "info".
func ParseLogLevel(line string) (level, msg string) {
	tag, rest, ok := bracket(line)
	if !ok {
		return "info", line
	}
	if isLogLevel(tag) {
		return tag, rest
	}
	if next, body, ok := bracket(rest); ok && isLogLevel(next) {
		return next, line[:len(line)-len(rest)] + body
	}
	return "info", line
}

// bracket returns the contents of a leading "[...] " and what follows it.
func bracket(s string) (tag, rest string, ok bool) {
	if len(s) < 3 || s[0] != '[' {
		return "", s, false
	}
	end := strings.Index(s, "] ")
	if end < 0 {
		return "", s, false
	}
	return s[1:end], s[end+2:], true
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}
