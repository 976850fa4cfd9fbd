package types

import (
	"encoding/json"
	"fmt"
)

// ContentPart represents a single piece of content inside a Message.
// A message can carry an ordered sequence of parts instead of a flat string
// when it needs to mix text with images or tool-call data.
type ContentPart struct {
	Type ContentType `json:"type"`

	// Text holds the payload for ContentTypeText parts.
	Text string `json:"text,omitempty"`

	// Image holds the payload for ContentTypeImage parts.
	Image *ImageContent `json:"image,omitempty"`

	// ToolUse holds the payload for ContentTypeToolUse parts (an
	// assistant-issued tool invocation request).
	ToolUse *ToolUseContent `json:"tool_use,omitempty"`

	// ToolResult holds the payload for ContentTypeToolResult parts (the
	// result of executing a previously requested tool use).
	ToolResult *ToolResultContent `json:"tool_result,omitempty"`
}

// ContentType enumerates the kinds of content a ContentPart can carry.
type ContentType string

// Content part kinds. Only the four kinds the context engine reasons about
// are modeled — audio/video/document parts are an external collaborator's
// concern (the provider client), not this library's.
const (
	ContentTypeText       ContentType = "text"
	ContentTypeImage      ContentType = "image"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// ImageContent is the payload of an image ContentPart.
type ImageContent struct {
	MIMEType string `json:"mime_type"`
	// Source is either a base64-encoded data blob or a URL; the caller's
	// provider client interprets it, this library treats it opaquely.
	Source string `json:"source"`
}

// ToolUseContent is the payload of a tool_use ContentPart — a request,
// usually issued by an assistant message, to invoke a named tool.
type ToolUseContent struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResultContent is the payload of a tool_result ContentPart — the
// outcome of executing a tool_use identified by ToolUseID.
type ToolResultContent struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

// NewTextPart builds a text ContentPart.
func NewTextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

// NewImagePart builds an image ContentPart.
func NewImagePart(mimeType, source string) ContentPart {
	return ContentPart{Type: ContentTypeImage, Image: &ImageContent{MIMEType: mimeType, Source: source}}
}

// NewToolUsePart builds a tool_use ContentPart.
func NewToolUsePart(id, name string, input json.RawMessage) ContentPart {
	return ContentPart{Type: ContentTypeToolUse, ToolUse: &ToolUseContent{ID: id, Name: name, Input: input}}
}

// NewToolResultPart builds a tool_result ContentPart.
func NewToolResultPart(toolUseID, content string) ContentPart {
	return ContentPart{Type: ContentTypeToolResult, ToolResult: &ToolResultContent{ToolUseID: toolUseID, Content: content}}
}

// String renders a short human-readable description of the part, used when
// estimating or logging content without dumping raw tool payloads.
func (p ContentPart) String() string {
	switch p.Type {
	case ContentTypeText:
		return p.Text
	case ContentTypeImage:
		if p.Image != nil {
			return fmt.Sprintf("[image %s]", p.Image.MIMEType)
		}
		return "[image]"
	case ContentTypeToolUse:
		if p.ToolUse != nil {
			return fmt.Sprintf("[tool_use %s(%s)]", p.ToolUse.Name, p.ToolUse.ID)
		}
		return "[tool_use]"
	case ContentTypeToolResult:
		if p.ToolResult != nil {
			return fmt.Sprintf("[tool_result for %s]", p.ToolResult.ToolUseID)
		}
		return "[tool_result]"
	default:
		return ""
	}
}
