package app

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"telos_booking/internal/domain"
)

/********** alias registries (single source of truth) **********/

// Scrapers and map providers name the same fields differently; the webhook
// forwards whatever they return.
var teloAliases = map[string][]string{
	"nombre":      {"nombre", "name", "title", "display_name", "displayName.text"},
	"direccion":   {"direccion", "address", "formatted_address", "formattedAddress", "vicinity", "location.address", "street"},
	"ciudad":      {"ciudad", "city", "location.city", "localidad"},
	"telefono":    {"telefono", "phone", "phone_number", "formatted_phone_number", "nationalPhoneNumber", "internationalPhoneNumber"},
	"descripcion": {"descripcion", "description", "summary", "editorialSummary.text"},
	"imagen":      {"imagen_url", "imagen", "image_url", "imageUrl", "image", "thumbnail", "photo"},
}

var numberAliases = map[string][]string{
	"rating": {"rating", "score", "puntuacion", "totalScore", "stars"},
	"precio": {"precio", "price", "precio_desde", "price_from", "tarifa"},
	"lat":    {"lat", "latitude", "latitud", "location.lat", "geometry.location.lat", "coordinates.lat", "gps_coordinates.latitude"},
	"lng":    {"lng", "lon", "longitude", "longitud", "location.lng", "location.lon", "geometry.location.lng", "coordinates.lng", "gps_coordinates.longitude"},
}

var serviceAliases = []string{"servicios", "services", "amenities", "categories", "comodidades"}

var listKeys = []string{"telos", "results", "items", "data"}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns the trimmed string at path or "".
func lookupStr(m map[string]any, path string) string {
	switch v := lookupAny(m, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return &s
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// parseNumberAR reads numbers the way Argentine listings write them:
// "4,5" -> 4.5, "$ 12.500" -> 12500, "12.500,50" -> 12500.5, "4.5" -> 4.5.
func parseNumberAR(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			return r
		}
		return -1
	}, s)
	if s == "" {
		return 0, false
	}
	hasDot, hasComma := strings.Contains(s, "."), strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = thousandsOrDecimal(s, ",")
	case hasDot:
		s = thousandsOrDecimal(s, ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// thousandsOrDecimal treats sep as a thousands separator when every group
// after it has exactly three digits, else as the decimal point.
func thousandsOrDecimal(s, sep string) string {
	parts := strings.Split(s, sep)
	thousands := len(parts) > 1
	for _, p := range parts[1:] {
		if len(p) != 3 {
			thousands = false
			break
		}
	}
	if thousands {
		return strings.Join(parts, "")
	}
	if len(parts) > 2 {
		// "1.2.3" is not a number either way
		return s
	}
	return strings.Join(parts, ".")
}

// getFloatFlexible: number from several paths (float64/int/string).
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return &f
			}
		case string:
			if f, ok := parseNumberAR(v); ok {
				return &f
			}
		}
	}
	return nil
}

// firstSliceStrings accepts []any of strings or {name/label/title} objects,
// or a single comma/pipe separated string.
func firstSliceStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		switch raw := lookupAny(m, k).(type) {
		case []any:
			out := make([]string, 0, len(raw))
			for _, it := range raw {
				switch t := it.(type) {
				case string:
					if t = strings.TrimSpace(t); t != "" {
						out = append(out, t)
					}
				case map[string]any:
					for _, f := range []string{"name", "nombre", "label", "title"} {
						if s, ok := t[f].(string); ok && strings.TrimSpace(s) != "" {
							out = append(out, strings.TrimSpace(s))
							break
						}
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			var out []string
			for _, p := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '|' || r == ';' }) {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

/********** payloads **********/

// WebhookPayload is the callback body. Telos stay loosely typed until mapped.
type WebhookPayload struct {
	Ciudad string
	JobID  string
	Telos  []map[string]any
}

// ParseWebhookPayload accepts {ciudad, job_id, telos|results|items|data: [...]}
// or a bare JSON array of telo objects.
func ParseWebhookPayload(body []byte) (WebhookPayload, error) {
	var out WebhookPayload
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &out.Telos); err != nil {
			return WebhookPayload{}, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
		}
		return out, nil
	}

	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return WebhookPayload{}, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	out.Ciudad = lookupStr(m, "ciudad")
	if out.Ciudad == "" {
		out.Ciudad = lookupStr(m, "city")
	}
	out.JobID = lookupStr(m, "job_id")
	for _, k := range listKeys {
		raw, ok := m[k].([]any)
		if !ok {
			continue
		}
		for _, it := range raw {
			if obj, ok := it.(map[string]any); ok {
				out.Telos = append(out.Telos, obj)
			}
		}
		break
	}
	if out.Telos == nil {
		return WebhookPayload{}, fmt.Errorf("%w: no telos list in payload", domain.ErrInvalid)
	}
	return out, nil
}

// mapWebhookTelo maps one loosely typed item. fallbackCity is used when the
// item carries no city of its own.
func mapWebhookTelo(m map[string]any, fallbackCity string) (domain.Telo, error) {
	t := domain.Telo{
		Nombre:      deref(firstNonEmptyAlias(m, teloAliases, "nombre")),
		Direccion:   deref(firstNonEmptyAlias(m, teloAliases, "direccion")),
		Ciudad:      deref(firstNonEmptyAlias(m, teloAliases, "ciudad")),
		Telefono:    firstNonEmptyAlias(m, teloAliases, "telefono"),
		Descripcion: firstNonEmptyAlias(m, teloAliases, "descripcion"),
		ImagenURL:   firstNonEmptyAlias(m, teloAliases, "imagen"),
		Precio:      getFloatFlexible(m, numberAliases["precio"]...),
		Rating:      getFloatFlexible(m, numberAliases["rating"]...),
		Lat:         getFloatFlexible(m, numberAliases["lat"]...),
		Lng:         getFloatFlexible(m, numberAliases["lng"]...),
		Servicios:   firstSliceStrings(m, serviceAliases...),
		Activo:      true,
		Fuente:      domain.SourceWebhook,
	}
	if t.Ciudad == "" {
		t.Ciudad = fallbackCity
	}
	// some sources rate out of 10
	if t.Rating != nil && *t.Rating > 5 && *t.Rating <= 10 {
		r := *t.Rating / 2
		t.Rating = &r
	}
	if t.ImagenURL != nil && !strings.HasPrefix(*t.ImagenURL, "http") {
		t.ImagenURL = nil
	}
	if err := t.Sanitize(); err != nil {
		return domain.Telo{}, err
	}
	return t, nil
}
