package proto

import (
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// MaxFrameSize bounds a single frame on stream carriers. Patches for a full
// page render stay well under this.
const MaxFrameSize = 16 << 20

// WriteFrame writes one varint-length-prefixed frame to w. Stream carriers
// (WebTransport bidi streams, poll batches) have no message boundaries of
// their own, so every frame is prefixed with its length.
func WriteFrame(w io.Writer, frame []byte) error {
	header := varint.ToUvarint(uint64(len(frame)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one varint-length-prefixed frame from r. Returns io.EOF
// cleanly when the stream ends on a frame boundary.
func ReadFrame(r io.Reader) ([]byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}
	size, err := varint.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return frame, nil
}

type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}
