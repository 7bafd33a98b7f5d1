package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	if err := WriteFrame(w, []byte(`{"kind":"Kill"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFrame(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != `{"kind":"Kill"}` {
		t.Errorf("got %q", got)
	}
}

func TestReadFrameShortLengthIsError(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0})
	if _, err := ReadFrame(buf); err == nil {
		t.Errorf("expected error on short length prefix")
	}
}

func TestReadFrameShortPayloadIsError(t *testing.T) {
	buf := &bytes.Buffer{}
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], 10)
	buf.Write(lengthBuf[:])
	buf.WriteString("abc")
	if _, err := ReadFrame(buf); err == nil {
		t.Errorf("expected error on short payload")
	}
}

func TestReadFrameZeroLengthIsProtocolError(t *testing.T) {
	buf := &bytes.Buffer{}
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], 0)
	buf.Write(lengthBuf[:])
	if _, err := ReadFrame(buf); err != ErrEmptyFrame {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestReadFrameOversizeIsError(t *testing.T) {
	buf := &bytes.Buffer{}
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], MaxFrameLength+1)
	buf.Write(lengthBuf[:])
	if _, err := ReadFrame(buf); err != ErrFrameTooLarge {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestWriteJSONReadJSONRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	type payload struct {
		A int    `json:"a"`
		B string `json:"b"`
	}
	want := payload{A: 1, B: "hi"}
	if err := WriteJSON(w, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got payload
	if err := ReadJSON(buf, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != want {
		t.Errorf("got %#v want %#v", got, want)
	}
}
