package fiscal

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// documentPaths are tried in order until one holds a base64 document
var documentPaths = []string{
	"data",
	"document",
	"result",
	"data.document",
	"result.document",
	"data.image",
	"content",
}

func isJSON(mediaType string, body []byte) bool {
	if strings.HasSuffix(mediaType, "json") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{' && gjson.ValidBytes(trimmed)
}

// unwrapJSON finds the embedded document in a JSON envelope
func unwrapJSON(body []byte) ([]byte, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	for _, path := range documentPaths {
		value := gjson.GetBytes(body, path)
		if value.Type != gjson.String {
			continue
		}
		if data, ok := decodeBase64(value.String()); ok {
			return data, true
		}
	}
	return nil, false
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// decodeBase64 accepts plain or data-URL base64 in any common alphabet
func decodeBase64(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, false
		}
		s = payload
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, false
	}

	for _, enc := range base64Encodings {
		if data, err := enc.DecodeString(s); err == nil && looksLikeDocument(data) {
			return data, true
		}
	}
	return nil, false
}

// looksLikeDocument reports whether data sniffs as a PDF or an image
func looksLikeDocument(data []byte) bool {
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		return true
	}
	contentType := http.DetectContentType(data)
	return contentType == "application/pdf" || strings.HasPrefix(contentType, "image/")
}
