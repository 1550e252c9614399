// Package transfer converts binary export payloads into the forms the
// delivery surfaces need: a typed binary object for download/share responses
// and a data-URI representation for inline embedding.
package transfer

import "fmt"

// Object wraps raw bytes with the metadata a delivery surface needs to hand
// them to a user: MIME type and suggested filename.
type Object struct {
	Data     []byte
	MIME     string
	Filename string
}

// NewObject builds an Object. An empty mime defaults to
// application/octet-stream.
func NewObject(data []byte, mime, filename string) *Object {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return &Object{Data: data, MIME: mime, Filename: filename}
}

// DataURI returns the object's content as an RFC 2397 data URI. Used where
// the consumer is an embedded document context that cannot fetch a served
// resource (file-scheme and sandbox same-origin restrictions).
func (o *Object) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", o.MIME, EncodeBase64(o.Data))
}

// Size returns the payload size in bytes.
func (o *Object) Size() int {
	return len(o.Data)
}
