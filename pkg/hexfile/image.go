package hexfile

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	// ImageSize is the size of the flash image.
	ImageSize = 256 * 1024
	// Fill is the value of erased flash.
	Fill = 0xFF

	recordMarker = ':'

	recData          = 0x00
	recExtendedSeg   = 0x02
	recStartSegment  = 0x03
	minRecordLength  = 11 // ":BBAAAATTCC"
	dataFieldOffset  = 9
	recordTypeOffset = 7
)

// FormatError reports a malformed line in a hex file.
type FormatError struct {
	Line int
	Text string
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("hex line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Image is a flash image populated from a hex file.
type Image struct {
	// First and Last are the lowest-written and last-written addresses,
	// -1 when nothing was loaded.
	First int
	Last  int
	// Loaded counts data bytes written.
	Loaded int
	// StartRecord is the raw start address record, if any.
	StartRecord string

	mem []byte
}

// NewImage returns an empty image filled with Fill.
func NewImage() *Image {
	mem := make([]byte, ImageSize)
	for i := range mem {
		mem[i] = Fill
	}
	return &Image{First: -1, Last: -1, mem: mem}
}

// Load parses the hex file at path.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader parses hex records from r.
func LoadReader(r io.Reader) (*Image, error) {
	img := NewImage()
	scanner := bufio.NewScanner(r)
	var offset int
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] != recordMarker {
			return nil, &FormatError{Line: lineNum, Text: line, Msg: "missing record marker"}
		}
		if len(line) < minRecordLength {
			return nil, &FormatError{Line: lineNum, Text: line, Msg: "record too short"}
		}
		count, err1 := strconv.ParseUint(line[1:3], 16, 8)
		addr, err2 := strconv.ParseUint(line[3:7], 16, 16)
		rtype, err3 := strconv.ParseUint(line[recordTypeOffset:dataFieldOffset], 16, 8)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, &FormatError{Line: lineNum, Text: line, Msg: "invalid record header"}
		}
		switch rtype {
		case recData:
			end := dataFieldOffset + int(count)*2
			if len(line) < end {
				return nil, &FormatError{Line: lineNum, Text: line, Msg: "data shorter than byte count"}
			}
			data, err := hex.DecodeString(line[dataFieldOffset:end])
			if err != nil {
				return nil, &FormatError{Line: lineNum, Text: line, Msg: "invalid data: " + err.Error()}
			}
			if err := img.write(int(addr)+offset, data); err != nil {
				return nil, &FormatError{Line: lineNum, Text: line, Msg: err.Error()}
			}
		case recExtendedSeg:
			if len(line) < dataFieldOffset+4 {
				return nil, &FormatError{Line: lineNum, Text: line, Msg: "extended offset too short"}
			}
			v, err := strconv.ParseUint(line[dataFieldOffset:dataFieldOffset+4], 16, 16)
			if err != nil {
				return nil, &FormatError{Line: lineNum, Text: line, Msg: "invalid extended offset"}
			}
			offset = int(v) << 4
		case recStartSegment:
			img.StartRecord = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return img, nil
}

func (m *Image) write(addr int, data []byte) error {
	if addr < 0 || addr+len(data) > len(m.mem) {
		return fmt.Errorf("address 0x%X+%d outside image", addr, len(data))
	}
	if len(data) == 0 {
		return nil
	}
	copy(m.mem[addr:], data)
	if m.First < 0 || addr < m.First {
		m.First = addr
	}
	m.Last = addr + len(data) - 1
	m.Loaded += len(data)
	return nil
}

// Length is the span programmed: Last-First+1, or 0 when empty.
func (m *Image) Length() int {
	if m.First < 0 {
		return 0
	}
	return m.Last - m.First + 1
}

// At returns the byte at addr.
func (m *Image) At(addr int) byte {
	return m.mem[addr]
}

// Bytes returns n bytes starting at start. The slice must not be modified.
func (m *Image) Bytes(start, n int) []byte {
	if start < 0 {
		start = 0
	}
	end := start + n
	if end > len(m.mem) {
		end = len(m.mem)
	}
	if start > end {
		return nil
	}
	return m.mem[start:end:end]
}
