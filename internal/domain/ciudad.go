package domain

import "time"

type Ciudad struct {
	ID        int64     `json:"id"`
	Nombre    string    `json:"nombre"`
	Slug      string    `json:"slug"`
	Provincia *string   `json:"provincia,omitempty"`
	Busquedas int64     `json:"busquedas"`
	Telos     int       `json:"telos"` // active telos, filled by list queries
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CityPage is what the city page renders: the city plus its listings.
type CityPage struct {
	Ciudad Ciudad `json:"ciudad"`
	Telos  []Telo `json:"telos"`
	Fuente string `json:"fuente"`
}

type CityCount struct {
	Nombre    string `json:"nombre"`
	Slug      string `json:"slug"`
	Busquedas int64  `json:"busquedas"`
}

type Stats struct {
	TotalTelos       int            `json:"total_telos"`
	TelosActivos     int            `json:"telos_activos"`
	TelosVerificados int            `json:"telos_verificados"`
	TotalCiudades    int            `json:"total_ciudades"`
	PorFuente        map[string]int `json:"por_fuente"`
	TopBuscadas      []CityCount    `json:"top_buscadas"`
}
