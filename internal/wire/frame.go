// Package wire implements the length-prefixed framing shared by every topic:
//
//	payload_len u64be | topic_len u64be | topic | payload
//
// Integrity is left to the underlying stream.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of the two length fields.
const HeaderSize = 16

// DefaultMaxFrameSize bounds topic plus payload of a single frame.
const DefaultMaxFrameSize = 64 << 20

// ErrFrameTooLarge is returned when a frame header declares more bytes than
// the decoder accepts. The stream cannot be resynchronised after it.
var ErrFrameTooLarge = errors.New("wire: frame too large")

// Frame is one decoded unit.
type Frame struct {
	Topic   string
	Payload []byte
}

// Encode returns the wire form of payload on topic.
func Encode(topic string, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, HeaderSize+len(topic)+len(payload)), topic, payload)
}

// AppendFrame appends the wire form of payload on topic to dst.
func AppendFrame(dst []byte, topic string, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint64(dst, uint64(len(payload)))
	dst = binary.BigEndian.AppendUint64(dst, uint64(len(topic)))
	dst = append(dst, topic...)
	return append(dst, payload...)
}

// Decoder accumulates bytes from successive stream reads and cuts them into
// frames. The zero value is ready to use.
type Decoder struct {
	// MaxFrameSize bounds topic plus payload; zero means DefaultMaxFrameSize.
	MaxFrameSize uint64

	buf []byte
}

// Write appends p to the accumulator. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes waiting for a complete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next returns the next complete frame. It reports false when more input is
// needed. The returned frame does not alias the accumulator.
func (d *Decoder) Next() (Frame, bool, error) {
	if len(d.buf) < HeaderSize {
		return Frame{}, false, nil
	}
	payloadLen := binary.BigEndian.Uint64(d.buf[0:8])
	topicLen := binary.BigEndian.Uint64(d.buf[8:16])

	limit := d.MaxFrameSize
	if limit == 0 {
		limit = DefaultMaxFrameSize
	}
	if payloadLen > limit || topicLen > limit || payloadLen+topicLen > limit {
		return Frame{}, false, fmt.Errorf("%w: topic %d bytes, payload %d bytes", ErrFrameTooLarge, topicLen, payloadLen)
	}

	total := HeaderSize + int(topicLen) + int(payloadLen)
	if len(d.buf) < total {
		return Frame{}, false, nil
	}

	topicEnd := HeaderSize + int(topicLen)
	f := Frame{
		Topic:   string(d.buf[HeaderSize:topicEnd]),
		Payload: append([]byte{}, d.buf[topicEnd:total]...),
	}
	d.consume(total)
	return f, true, nil
}

// Frames drains every complete frame currently buffered, in order.
func (d *Decoder) Frames() ([]Frame, error) {
	var frames []Frame
	for {
		f, ok, err := d.Next()
		if err != nil {
			return frames, err
		}
		if !ok {
			return frames, nil
		}
		frames = append(frames, f)
	}
}

// Reset discards all buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

func (d *Decoder) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}
