package memsink

import (
	"fmt"
	"strconv"
	"strings"
)

// payloadSizeFromObjectSuffix parses the "...@<N>{K|M}" size hint off
// the end of a sink object name (spec.md §6 object naming), e.g.
// "ustreamer-jpeg@8M" -> 8*1024*1024. Zero or a missing suffix is
// rejected as an invalid object name.
func payloadSizeFromObjectSuffix(object string) (int, error) {
	at := strings.LastIndexByte(object, '@')
	if at < 0 || at == len(object)-1 {
		return 0, fmt.Errorf("memsink: object %q has no size suffix", object)
	}
	suffix := object[at+1:]

	mult := 1
	switch suffix[len(suffix)-1] {
	case 'K', 'k':
		mult = 1024
		suffix = suffix[:len(suffix)-1]
	case 'M', 'm':
		mult = 1024 * 1024
		suffix = suffix[:len(suffix)-1]
	}

	n, err := strconv.Atoi(suffix)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("memsink: object %q has invalid size suffix", object)
	}
	return n * mult, nil
}
