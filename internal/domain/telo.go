package domain

import "time"

// Source tags stored in telos.fuente.
const (
	SourceManual  = "manual"
	SourceWebhook = "webhook"
	SourceMock    = "mock"
	SourceSeed    = "seed"
)

type Telo struct {
	ID          int64     `json:"id"`
	Nombre      string    `json:"nombre"`
	Slug        string    `json:"slug"`
	Direccion   string    `json:"direccion"`
	Ciudad      string    `json:"ciudad"`
	Telefono    *string   `json:"telefono,omitempty"`
	Precio      *float64  `json:"precio,omitempty"`
	Servicios   []string  `json:"servicios"`
	Descripcion *string   `json:"descripcion,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	ImagenURL   *string   `json:"imagen_url,omitempty"`
	Lat         *float64  `json:"lat,omitempty"`
	Lng         *float64  `json:"lng,omitempty"`
	Activo      bool      `json:"activo"`
	Verificado  bool      `json:"verificado"`
	Fuente      string    `json:"fuente"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TeloPatch carries a partial admin update; nil fields are left untouched.
type TeloPatch struct {
	Nombre      *string   `json:"nombre"`
	Direccion   *string   `json:"direccion"`
	Ciudad      *string   `json:"ciudad"`
	Telefono    *string   `json:"telefono"`
	Precio      *float64  `json:"precio"`
	Servicios   *[]string `json:"servicios"`
	Descripcion *string   `json:"descripcion"`
	Rating      *float64  `json:"rating"`
	ImagenURL   *string   `json:"imagen_url"`
	Lat         *float64  `json:"lat"`
	Lng         *float64  `json:"lng"`
	Activo      *bool     `json:"activo"`
	Verificado  *bool     `json:"verificado"`
}

type MapPoint struct {
	ID     int64    `json:"id"`
	Slug   string   `json:"slug"`
	Nombre string   `json:"nombre"`
	Ciudad string   `json:"ciudad"`
	Lat    float64  `json:"lat"`
	Lng    float64  `json:"lng"`
	Precio *float64 `json:"precio,omitempty"`
	Rating *float64 `json:"rating,omitempty"`
}

type Coords struct{ Lat, Lng float64 }

type UpsertResult struct {
	Inserted int `json:"insertados"`
	Updated  int `json:"actualizados"`
	Skipped  int `json:"omitidos"`
}
