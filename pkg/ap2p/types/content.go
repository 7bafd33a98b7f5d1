package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MessageContent is the wire representation of a message body: either plain
// text or a named file payload. It mirrors the disjoint union
// MessageContent::{Text, File} from the wire format.
type MessageContent struct {
	text     string
	fileName string
	fileData []byte
	isFile   bool
}

// NewTextContent builds a MessageContent carrying UTF-8 text.
func NewTextContent(text string) MessageContent {
	return MessageContent{text: text}
}

// NewFileContent builds a MessageContent carrying a named file's bytes.
func NewFileContent(name string, data []byte) MessageContent {
	return MessageContent{fileName: name, fileData: data, isFile: true}
}

// IsFile reports whether this content is a file payload rather than text.
func (c MessageContent) IsFile() bool {
	return c.isFile
}

// Text returns the text payload; only meaningful when !IsFile().
func (c MessageContent) Text() string {
	return c.text
}

// File returns the filename and bytes of a file payload; only meaningful
// when IsFile().
func (c MessageContent) File() (name string, data []byte) {
	return c.fileName, c.fileData
}

type wireMessageContent struct {
	Kind     string `json:"kind"`
	Text     string `json:"text,omitempty"`
	FileName string `json:"filename,omitempty"`
	FileData string `json:"bytes,omitempty"`
}

// MarshalJSON implements json.Marshaler, tagging the variant with "kind".
func (c MessageContent) MarshalJSON() ([]byte, error) {
	w := wireMessageContent{}
	if c.isFile {
		w.Kind = "File"
		w.FileName = c.fileName
		w.FileData = base64.StdEncoding.EncodeToString(c.fileData)
	} else {
		w.Kind = "Text"
		w.Text = c.text
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var w wireMessageContent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "Text":
		*c = NewTextContent(w.Text)
	case "File":
		raw, err := base64.StdEncoding.DecodeString(w.FileData)
		if err != nil {
			return fmt.Errorf("message content: decoding file bytes: %w", err)
		}
		*c = NewFileContent(w.FileName, raw)
	default:
		return fmt.Errorf("message content: unknown kind %q", w.Kind)
	}
	return nil
}
