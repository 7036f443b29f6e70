package pond

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	recordingKey = regexp.MustCompile(`^recording-(\d+)`)
	namedKey     = regexp.MustCompile(`^(\d+)-(.*)`)
	separators   = regexp.MustCompile(`[-_]+`)
)

// DisplayTitle turns a pond key into a readable title. Keys look like
// "audio-pond/recording-<unix ms>.wav" or "audio-pond/<unix ms>-<name>.wav";
// anything else just has its separators turned into spaces.
func DisplayTitle(key string) string {
	name := key[strings.LastIndex(key, "/")+1:]
	name = audioExt.ReplaceAllString(name, "")

	if m := recordingKey.FindStringSubmatch(name); m != nil {
		if d, ok := msDate(m[1]); ok {
			return "recording [" + d + "]"
		}
	}
	if m := namedKey.FindStringSubmatch(name); m != nil {
		if d, ok := msDate(m[1]); ok {
			return strings.TrimSpace(separators.ReplaceAllString(m[2], " ")) + " [" + d + "]"
		}
	}
	return strings.TrimSpace(separators.ReplaceAllString(name, " "))
}

func msDate(s string) (string, bool) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return "", false
	}
	return time.UnixMilli(ms).UTC().Format("Jan 2, 2006"), true
}
