package http

import (
	"encoding/json"
	"mime"
	"net/http"
)

// ResponseBuilder provides a fluent API for JSON and file responses.
type ResponseBuilder struct {
	statusCode  int
	headers     map[string]string
	body        any
	raw         []byte
	contentType string
}

// NewJSONResponse creates a builder with a 200 status.
func NewJSONResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode:  http.StatusOK,
		headers:     make(map[string]string),
		contentType: "application/json; charset=utf-8",
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// ETag sets the entity tag to the quoted table version.
func (b *ResponseBuilder) ETag(version string) *ResponseBuilder {
	return b.Header("ETag", etag(version))
}

// Body sets a value to be JSON encoded.
func (b *ResponseBuilder) Body(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Attachment replaces the JSON body with a file download.
func (b *ResponseBuilder) Attachment(filename, contentType string, data []byte) *ResponseBuilder {
	b.contentType = contentType
	b.raw = data
	b.body = nil
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if disposition == "" {
		disposition = "attachment"
	}
	return b.Header("Content-Disposition", disposition)
}

func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", b.contentType)

	if b.raw != nil {
		w.WriteHeader(b.statusCode)
		_, _ = w.Write(b.raw)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}
