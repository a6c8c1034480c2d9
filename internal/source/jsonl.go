package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"mailtriage/internal/triage"
)

const maxLineSize = 1 << 20

var errLineTooLong = fmt.Errorf("line exceeds %d bytes", maxLineSize)

// JSONL reads one JSON message per line. Blank lines are skipped; a line that
// does not decode or is longer than maxLineSize is reported as an
// *triage.InputError and reading continues with the next line.
type JSONL struct {
	reader *bufio.Reader
	line   int
}

func NewJSONL(r io.Reader) *JSONL {
	return &JSONL{reader: bufio.NewReaderSize(r, 64*1024)}
}

func (j *JSONL) Next(ctx context.Context) (triage.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return triage.Message{}, err
		}
		line, err := j.readLine()
		if err != nil {
			return triage.Message{}, err
		}
		j.line++
		id := fmt.Sprintf("line-%d", j.line)
		if line == nil {
			return triage.Message{}, &triage.InputError{ID: id, Err: errLineTooLong}
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var msg triage.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return triage.Message{}, &triage.InputError{ID: id, Err: err}
		}
		return normalize(msg), nil
	}
}

// readLine returns the next line without its terminator. An over-long line is
// consumed to its end and returned as nil; io.EOF means no more lines.
func (j *JSONL) readLine() ([]byte, error) {
	buf := []byte{}
	tooLong := false
	read := false
	for {
		chunk, isPrefix, err := j.reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && read {
				break
			}
			return nil, err
		}
		read = true
		if !tooLong {
			if len(buf)+len(chunk) > maxLineSize {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			break
		}
	}
	if tooLong {
		return nil, nil
	}
	return buf, nil
}
