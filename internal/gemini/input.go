package gemini

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// DecodeInlineImage accepts a bare base64 payload or a data URI and returns the
// decoded bytes with a sniffed mime type.
func DecodeInlineImage(raw string) (InputImage, error) {
	payload := strings.TrimSpace(raw)
	declared := ""
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return InputImage{}, fmt.Errorf("malformed data uri")
		}
		header := payload[len("data:"):comma]
		declared, _, _ = strings.Cut(header, ";")
		payload = payload[comma+1:]
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return InputImage{}, fmt.Errorf("empty image payload")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return InputImage{}, fmt.Errorf("decode base64 image: %w", err)
		}
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		if strings.HasPrefix(declared, "image/") {
			mime = declared
		} else {
			return InputImage{}, fmt.Errorf("payload is not an image (%s)", mime)
		}
	}
	return InputImage{Data: data, MIMEType: mime}, nil
}
