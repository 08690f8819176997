package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telos_booking/internal/app"
	"telos_booking/internal/domain"
)

func TestMockData_Loads(t *testing.T) {
	m, err := app.LoadMockData()
	require.NoError(t, err)

	all := m.All()
	require.NotEmpty(t, all)
	seen := map[string]bool{}
	for _, tl := range all {
		assert.Negative(t, tl.ID)
		assert.Equal(t, domain.SourceMock, tl.Fuente)
		assert.True(t, tl.Activo)
		assert.False(t, seen[tl.Slug], "duplicate slug %s", tl.Slug)
		seen[tl.Slug] = true
	}

	// All hands out a copy
	all[0].Fuente = domain.SourceSeed
	assert.Equal(t, domain.SourceMock, m.All()[0].Fuente)
}

func TestMockData_ForCity(t *testing.T) {
	m := app.MustLoadMockData()

	ba := m.ForCity("buenos-aires")
	assert.Len(t, ba, 3)
	assert.Equal(t, ba, m.ForCity("Buenos Aires"))

	assert.Empty(t, m.ForCity("ushuaia"))
	assert.Len(t, m.ForCityOrGeneric("ushuaia"), 6)
	assert.Len(t, m.ForCityOrGeneric("rosario"), 2)
}

func TestMockData_ListFilters(t *testing.T) {
	m := app.MustLoadMockData()

	page := m.List(domain.TelosQuery{Servicio: ptr("Jacuzzi"), Orden: "precio"})
	require.NotEmpty(t, page.Items)
	for i, tl := range page.Items {
		assert.Contains(t, tl.Servicios, "jacuzzi")
		if i > 0 {
			assert.LessOrEqual(t, *page.Items[i-1].Precio, *tl.Precio)
		}
	}

	page = m.List(domain.TelosQuery{Verificado: ptr(true), Limit: 2, Page: 2})
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, domain.SourceMock, page.Fuente)

	page = m.List(domain.TelosQuery{Page: 99})
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func TestMockData_Cities(t *testing.T) {
	cs := app.MustLoadMockData().Cities()
	require.Len(t, cs, 6)
	total := 0
	for _, c := range cs {
		total += c.Telos
	}
	assert.Equal(t, 10, total)
}
