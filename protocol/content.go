package protocol

import (
	"encoding/json"
	"fmt"
)

// Annotations is the optional audience/priority hint attached to content.
type Annotations struct {
	Audience []string `json:"audience,omitempty"`
	Priority *float64 `json:"priority,omitempty"`
}

// ContentKind tags the discriminated union in Content.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentImage    ContentKind = "image"
	ContentAudio    ContentKind = "audio"
	ContentResource ContentKind = "resource"
)

// Content is the discriminated union used in tool results, prompt messages,
// and sampling messages: text, image, audio, or an embedded resource, each
// optionally annotated.
type Content struct {
	Type ContentKind

	Text string // ContentText

	Data     string // ContentImage, ContentAudio: base64
	MimeType string // ContentImage, ContentAudio

	Resource *ResourceContents // ContentResource

	Annotations *Annotations
}

// TextContent builds a text content block.
func TextContent(text string) Content { return Content{Type: ContentText, Text: text} }

// ImageContent builds an image content block (data must already be base64).
func ImageContent(data, mimeType string) Content {
	return Content{Type: ContentImage, Data: data, MimeType: mimeType}
}

// AudioContent builds an audio content block (data must already be base64).
func AudioContent(data, mimeType string) Content {
	return Content{Type: ContentAudio, Data: data, MimeType: mimeType}
}

// ResourceContents is the text-or-blob variant embedded by ContentResource.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"` // set for text resources
	Blob     string `json:"blob,omitempty"` // base64, set for binary resources
}

type wireContent struct {
	Type        ContentKind       `json:"type"`
	Text        string            `json:"text,omitempty"`
	Data        string            `json:"data,omitempty"`
	MimeType    string            `json:"mimeType,omitempty"`
	Resource    *ResourceContents `json:"resource,omitempty"`
	Annotations *Annotations      `json:"annotations,omitempty"`
}

func (c Content) MarshalJSON() ([]byte, error) {
	w := wireContent{Type: c.Type, Annotations: c.Annotations}
	switch c.Type {
	case ContentText:
		w.Text = c.Text
	case ContentImage, ContentAudio:
		w.Data, w.MimeType = c.Data, c.MimeType
	case ContentResource:
		w.Resource = c.Resource
	default:
		return nil, fmt.Errorf("protocol: unknown content type %q", c.Type)
	}
	return json.Marshal(w)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var w wireContent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Content{
		Type:        w.Type,
		Text:        w.Text,
		Data:        w.Data,
		MimeType:    w.MimeType,
		Resource:    w.Resource,
		Annotations: w.Annotations,
	}
	return nil
}
