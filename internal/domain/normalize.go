package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds accents, lowercases, drops punctuation and collapses
// whitespace. "  Córdoba, Capital " -> "cordoba capital".
func Normalize(s string) string {
	// transformers keep state, build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

func Slugify(s string) string {
	return strings.ReplaceAll(Normalize(s), " ", "-")
}

// TeloKey is the normalized (nombre, direccion, ciudad) triple backing the
// unique index on telos.
type TeloKey struct {
	Nombre, Direccion, Ciudad string
}

func KeyOf(nombre, direccion, ciudad string) TeloKey {
	return TeloKey{Nombre: Normalize(nombre), Direccion: Normalize(direccion), Ciudad: Normalize(ciudad)}
}

func (k TeloKey) String() string {
	return k.Nombre + "|" + k.Direccion + "|" + k.Ciudad
}

// TeloSlug is stable for a key: the readable part comes from name and city,
// the suffix from the full key so same-name telos in one city stay distinct.
func TeloSlug(nombre, direccion, ciudad string) string {
	sum := sha1.Sum([]byte(KeyOf(nombre, direccion, ciudad).String()))
	base := Slugify(nombre + " " + ciudad)
	if len(base) > 80 {
		base = strings.TrimRight(base[:80], "-")
	}
	return base + "-" + hex.EncodeToString(sum[:])[:6]
}

// ValidateCityName trims and checks a user supplied city name.
func ValidateCityName(s string) (string, error) {
	name := strings.Join(strings.Fields(s), " ")
	if n := len([]rune(name)); n < 2 || n > 80 {
		return "", fmt.Errorf("%w: ciudad must be 2-80 characters", ErrInvalid)
	}
	if Normalize(name) == "" {
		return "", fmt.Errorf("%w: ciudad has no letters", ErrInvalid)
	}
	return name, nil
}

// Column widths of the telos table, in characters.
const (
	MaxNombreLen      = 200
	MaxDireccionLen   = 255
	MaxCiudadLen      = 120
	MaxTelefonoLen    = 60
	MaxImagenURLLen   = 500
	MaxDescripcionLen = 4000
)

// clampRunes cuts s to at most n characters.
func clampRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

// dropIfLonger clears optional fields that would be useless once cut.
func dropIfLonger(p *string, n int) *string {
	if p == nil || utf8.RuneCountInString(*p) > n {
		return nil
	}
	return p
}

// Sanitize clamps and validates a telo before it is written.
func (t *Telo) Sanitize() error {
	t.Nombre = clampRunes(strings.TrimSpace(t.Nombre), MaxNombreLen)
	t.Direccion = clampRunes(strings.TrimSpace(t.Direccion), MaxDireccionLen)
	t.Ciudad = clampRunes(strings.Join(strings.Fields(t.Ciudad), " "), MaxCiudadLen)
	t.Telefono = dropIfLonger(t.Telefono, MaxTelefonoLen)
	t.ImagenURL = dropIfLonger(t.ImagenURL, MaxImagenURLLen)
	if t.Descripcion != nil {
		d := clampRunes(*t.Descripcion, MaxDescripcionLen)
		t.Descripcion = &d
	}
	if t.Nombre == "" || t.Direccion == "" || t.Ciudad == "" {
		return fmt.Errorf("%w: nombre, direccion and ciudad are required", ErrInvalid)
	}
	if Normalize(t.Nombre) == "" || Normalize(t.Ciudad) == "" {
		return fmt.Errorf("%w: nombre and ciudad need letters or digits", ErrInvalid)
	}
	if t.Rating != nil {
		r := *t.Rating
		if r < 0 {
			r = 0
		}
		if r > 5 {
			r = 5
		}
		t.Rating = &r
	}
	if t.Precio != nil && *t.Precio < 0 {
		t.Precio = nil
	}
	if (t.Lat == nil) != (t.Lng == nil) {
		t.Lat, t.Lng = nil, nil
	}
	if t.Lat != nil && (*t.Lat < -90 || *t.Lat > 90 || *t.Lng < -180 || *t.Lng > 180) {
		t.Lat, t.Lng = nil, nil
	}
	t.Servicios = normalizeServices(t.Servicios)
	if t.Fuente == "" {
		t.Fuente = SourceManual
	}
	t.Slug = TeloSlug(t.Nombre, t.Direccion, t.Ciudad)
	return nil
}

// normalizeServices lowercases, trims and dedupes, keeping first-seen order.
func normalizeServices(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		v := strings.ToLower(strings.Join(strings.Fields(s), " "))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
