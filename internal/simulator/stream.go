package simulator

import (
	"bytes"

	"github.com/tturner/labctl/internal/checksum"
	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/frame"
)

// maxPending bounds buffered garbage before the splitter starts discarding.
const maxPending = 512

// splitFrames cuts complete request frames off the front of buf and returns
// them with the unconsumed remainder.
func splitFrames(dialect command.Dialect, buf []byte) ([][]byte, []byte) {
	var frames [][]byte
	for {
		var (
			f    []byte
			rest []byte
			ok   bool
		)
		switch dialect {
		case command.DialectCRC16:
			f, rest, ok = splitFixed(buf, frame.RTUFrameSize)
		case command.DialectSum:
			buf = skipTo(buf, frame.SumHeader)
			f, rest, ok = splitFixed(buf, frame.SumFrameSize)
		case command.DialectSum16:
			buf = skipTo(buf, frame.SumHeader)
			f, rest, ok = splitSum16(buf)
		case command.DialectASCII:
			f, rest, ok = splitLine(buf)
		}
		if !ok {
			if len(buf) > maxPending {
				buf = buf[len(buf)-maxPending:]
			}
			return frames, buf
		}
		frames = append(frames, f)
		buf = rest
	}
}

func splitFixed(buf []byte, size int) ([]byte, []byte, bool) {
	if len(buf) < size {
		return nil, buf, false
	}
	return append([]byte(nil), buf[:size]...), buf[size:], true
}

func skipTo(buf []byte, marker byte) []byte {
	if i := bytes.IndexByte(buf, marker); i >= 0 {
		return buf[i:]
	}
	return buf[:0]
}

// splitSum16 finds the first tail byte whose trailing 16-bit sum matches.
func splitSum16(buf []byte) ([]byte, []byte, bool) {
	for i := 3; i+2 < len(buf); i++ {
		if buf[i] != frame.SumTail {
			continue
		}
		lo, hi := checksum.Sum16(buf[:i+1])
		if buf[i+1] == lo && buf[i+2] == hi {
			return append([]byte(nil), buf[:i+3]...), buf[i+3:], true
		}
	}
	return nil, buf, false
}

func splitLine(buf []byte) ([]byte, []byte, bool) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return nil, buf, false
	}
	line := bytes.TrimRight(buf[:i], "\r")
	return append([]byte(nil), line...), buf[i+1:], true
}
