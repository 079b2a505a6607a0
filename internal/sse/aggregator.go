// Package sse consumes Server-Sent-Event streams and reduces them to text.
package sse

import (
	"errors"
	"io"
	"strings"
)

// DoneSentinel is the data payload that signals normal end of stream.
const DoneSentinel = "[DONE]"

const readChunkSize = 4096

// Aggregate reads an SSE-framed byte stream and concatenates every data
// payload received before the [DONE] sentinel. Frames may be split across
// read boundaries; the carry buffer holds incomplete trailing data until the
// blank-line event delimiter arrives. Early stream closure without [DONE]
// returns whatever was accumulated. A read error other than EOF is returned
// alongside the text collected so far so the caller can fall back.
func Aggregate(r io.Reader) (string, error) {
	var out strings.Builder
	var carry string
	chunk := make([]byte, readChunkSize)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			carry += string(chunk[:n])
			events := strings.Split(carry, "\n\n")
			// The last element is an incomplete event; keep it for the next read.
			carry = events[len(events)-1]
			for _, event := range events[:len(events)-1] {
				data, done := decodeEvent(event)
				if done {
					return strings.TrimRight(out.String(), " \t\r\n"), nil
				}
				out.WriteString(data)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Flush a trailing undelimited event before giving up.
				if data, done := decodeEvent(carry); !done {
					out.WriteString(data)
				}
				return strings.TrimRight(out.String(), " \t\r\n"), nil
			}
			return strings.TrimRight(out.String(), " \t\r\n"), err
		}
	}
}

// decodeEvent extracts the concatenated data payload of one SSE event and
// reports whether the event carries the terminal sentinel.
func decodeEvent(event string) (string, bool) {
	var data strings.Builder
	for _, line := range strings.Split(event, "\n") {
		line = strings.TrimSuffix(line, "\r")
		rest, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		// The SSE framing convention allows one space after the colon.
		rest = strings.TrimPrefix(rest, " ")
		if rest == DoneSentinel {
			return "", true
		}
		data.WriteString(rest)
	}
	return data.String(), false
}
