package validators

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

const maxCallbackBody = 64 << 10

// CallbackFields flattens a gateway callback into one field map. Gateways post
// url-encoded forms, multipart bodies, JSON, or nothing at all with the data in
// the query string, so every shape is accepted. Body fields win over query
// fields. Parse failures yield whatever could be read; this never fails.
func CallbackFields(r *http.Request) types.Fields {
	fields := types.Fields{}
	if r == nil {
		return fields
	}

	for key, values := range bodyValues(r) {
		setFirst(fields, key, values)
	}
	if r.URL != nil {
		for key, values := range r.URL.Query() {
			if _, ok := fields[strings.TrimSpace(key)]; ok {
				continue
			}
			setFirst(fields, key, values)
		}
	}
	return fields
}

func bodyValues(r *http.Request) url.Values {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	_ = r.Body.Close()
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || (mediaType == "" && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{"))):
		return jsonValues(raw)
	case strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "":
		if err := r.ParseMultipartForm(maxCallbackBody); err != nil || r.MultipartForm == nil {
			return nil
		}
		return url.Values(r.MultipartForm.Value)
	default:
		// ParseQuery keeps the pairs it could read alongside the error.
		values, _ := url.ParseQuery(string(raw))
		return values
	}
}

func jsonValues(raw []byte) url.Values {
	var payload map[string]any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil
	}
	values := url.Values{}
	for key, value := range payload {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			values.Set(key, v)
		case json.Number, bool:
			values.Set(key, fmt.Sprint(v))
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			values.Set(key, string(encoded))
		}
	}
	return values
}

func setFirst(fields types.Fields, key string, values []string) {
	key = strings.TrimSpace(key)
	if key == "" || len(values) == 0 {
		return
	}
	fields[key] = strings.TrimSpace(values[0])
}
