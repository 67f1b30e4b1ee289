package app

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/voltship/internal/domain"
)

// maxErrorLine bounds how much of a rejected frame a DecodeError keeps.
const maxErrorLine = 64

// Decode parses one serial line into a Sample.
//
// Surrounding whitespace and the line terminator are stripped and bytes that
// are not valid UTF-8 are dropped before parsing. Anything that is not a
// base-10 integer that fits an int yields a *domain.DecodeError wrapping
// domain.ErrNotANumber; the error keeps at most the first maxErrorLine bytes
// of the frame. The value is not checked against the ADC resolution.
func Decode(line []byte) (domain.Sample, error) {
	text := strings.ToValidUTF8(string(bytes.TrimSpace(line)), "")
	text = strings.TrimSpace(text)

	v, err := strconv.Atoi(text)
	if err != nil {
		return domain.Sample{}, &domain.DecodeError{
			Line: append([]byte(nil), line[:min(len(line), maxErrorLine)]...),
			Err:  domain.ErrNotANumber,
		}
	}
	return domain.Sample{Raw: v, Timestamp: time.Now()}, nil
}

// splitFrames splits a chunk of buffered bytes into frames. The trailing
// fragment after the last terminator is returned separately because it may be
// a partially transmitted number.
func splitFrames(chunk []byte) (frames [][]byte, rest []byte) {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			break
		}
		frame := chunk[:i+1]
		chunk = chunk[i+1:]
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		frames = append(frames, frame)
	}
	if len(bytes.TrimSpace(chunk)) == 0 {
		return frames, nil
	}
	return frames, chunk
}
