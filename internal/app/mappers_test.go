package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telos_booking/internal/domain"
)

func TestParseNumberAR(t *testing.T) {
	cases := map[string]float64{
		"4,5":        4.5,
		"4.5":        4.5,
		"$ 12.500":   12500,
		"12.500,50":  12500.5,
		"1.250.000":  1250000,
		"ARS 18000":  18000,
		"-34,6037":   -34.6037,
		"-58.381592": -58.381592,
	}
	for in, want := range cases {
		got, ok := parseNumberAR(in)
		if !ok {
			t.Fatalf("%q: not parsed", in)
		}
		if got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "consultar", "1.2.3"} {
		if _, ok := parseNumberAR(in); ok {
			t.Fatalf("%q: expected no number", in)
		}
	}
}

func TestParseWebhookPayload_Shapes(t *testing.T) {
	p, err := ParseWebhookPayload([]byte(`{"city":"Salta","job_id":"abc","results":[{"name":"A"},"junk"]}`))
	require.NoError(t, err)
	assert.Equal(t, "Salta", p.Ciudad)
	assert.Equal(t, "abc", p.JobID)
	assert.Len(t, p.Telos, 1)

	p, err = ParseWebhookPayload([]byte(`[{"name":"A"},{"name":"B"}]`))
	require.NoError(t, err)
	assert.Empty(t, p.Ciudad)
	assert.Len(t, p.Telos, 2)

	_, err = ParseWebhookPayload([]byte(`{"ciudad":"Salta"}`))
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = ParseWebhookPayload([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestMapWebhookTelo_Aliases(t *testing.T) {
	m := map[string]any{
		"title":               "Hotel Alojamiento Sol",
		"formatted_address":   "Av. Mitre 900",
		"location":            map[string]any{"city": "Avellaneda", "lat": -34.66, "lng": -58.36},
		"nationalPhoneNumber": "011 4201-0000",
		"totalScore":          8.6,
		"price_from":          "$ 9.500",
		"amenities":           []any{"Jacuzzi", map[string]any{"name": "WiFi"}, "jacuzzi"},
		"thumbnail":           "data:image/png;base64,xx",
	}
	tl, err := mapWebhookTelo(m, "Buenos Aires")
	require.NoError(t, err)

	assert.Equal(t, "Hotel Alojamiento Sol", tl.Nombre)
	assert.Equal(t, "Avellaneda", tl.Ciudad, "item city wins over the fallback")
	require.NotNil(t, tl.Rating)
	assert.InDelta(t, 4.3, *tl.Rating, 1e-9)
	require.NotNil(t, tl.Precio)
	assert.Equal(t, 9500.0, *tl.Precio)
	require.NotNil(t, tl.Lat)
	assert.Equal(t, -34.66, *tl.Lat)
	assert.Equal(t, []string{"jacuzzi", "wifi"}, tl.Servicios)
	assert.Nil(t, tl.ImagenURL)
	assert.Equal(t, domain.SourceWebhook, tl.Fuente)
	assert.True(t, tl.Activo)
	assert.NotEmpty(t, tl.Slug)
}

func TestMapWebhookTelo_FallbackCityAndCommaServices(t *testing.T) {
	tl, err := mapWebhookTelo(map[string]any{
		"nombre": "Motel Ruta", "direccion": "Ruta 8 km 60", "servicios": "cochera | jacuzzi, wifi",
	}, "Pilar")
	require.NoError(t, err)
	assert.Equal(t, "Pilar", tl.Ciudad)
	assert.Equal(t, []string{"cochera", "jacuzzi", "wifi"}, tl.Servicios)

	_, err = mapWebhookTelo(map[string]any{"nombre": "Motel Ruta", "direccion": "Ruta 8 km 60"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestMapWebhookTelo_OversizedFieldsStillMap(t *testing.T) {
	longURL := "https://lh3.googleusercontent.com/p/" + strings.Repeat("AF1Qip", 120)
	tl, err := mapWebhookTelo(map[string]any{
		"name":      "Hotel " + strings.Repeat("Palermo ", 40),
		"address":   "Thames 1500",
		"image_url": longURL,
		"phone":     "011 " + strings.Repeat("4777-0000 / ", 10),
	}, "Buenos Aires")
	require.NoError(t, err)

	assert.Nil(t, tl.ImagenURL)
	assert.Nil(t, tl.Telefono)
	assert.LessOrEqual(t, len([]rune(tl.Nombre)), domain.MaxNombreLen)
	assert.Equal(t, "Thames 1500", tl.Direccion)
}
