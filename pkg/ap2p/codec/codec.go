// Package codec implements the length-prefixed JSON framing shared by every
// socket in the system: 4-byte big-endian length, then that many bytes of
// UTF-8 JSON (spec §4.1).
package codec

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLength caps the payload length of a single frame, bounding how
// much memory a file-bearing frame can force a reader to allocate.
const MaxFrameLength = 64 * 1024 * 1024

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// MaxFrameLength.
var ErrFrameTooLarge = errors.New("codec: frame exceeds maximum length")

// ErrEmptyFrame is returned when a frame's declared length is zero; no valid
// tagged message decodes from empty bytes, so this is always a protocol
// error for the caller to raise.
var ErrEmptyFrame = errors.New("codec: zero-length frame")

// ReadFrame reads one length-prefixed frame from r and returns its payload.
// A short read on either the length prefix or the payload is an error.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("codec: reading frame length: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if length > MaxFrameLength {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("codec: reading frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame to w, buffering the
// length and payload and flushing exactly once.
func WriteFrame(w *bufio.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if len(payload) > MaxFrameLength {
		return ErrFrameTooLarge
	}
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("codec: writing frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("codec: writing frame payload: %w", err)
	}
	return w.Flush()
}

// ReadJSON reads one frame and unmarshals it into v.
func ReadJSON(r io.Reader, v interface{}) error {
	payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("codec: decoding frame: %w", err)
	}
	return nil
}

// WriteJSON marshals v and writes it as one frame.
func WriteJSON(w *bufio.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("codec: encoding frame: %w", err)
	}
	return WriteFrame(w, payload)
}
