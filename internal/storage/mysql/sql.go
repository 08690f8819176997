package mysql

const teloColumns = `
  t.id, t.nombre, t.slug, t.direccion, t.ciudad, t.telefono, t.precio, t.servicios,
  t.descripcion, t.rating, t.imagen_url, t.lat, t.lng, t.activo, t.verificado,
  t.fuente, t.created_at, t.updated_at`

const insertTeloSQL = `
INSERT INTO telos
  (nombre, slug, direccion, ciudad, nombre_norm, direccion_norm, ciudad_norm,
   telefono, precio, servicios, descripcion, rating, imagen_url, lat, lng,
   activo, verificado, fuente)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Duplicate key (normalized name/address/city, or the slug derived from it)
// updates in place. COALESCE keeps the stored value when the new one is NULL;
// activo, verificado and fuente are owned by admins and never overwritten.
const upsertTeloOnDup = `
ON DUPLICATE KEY UPDATE
  nombre      = VALUES(nombre),
  direccion   = VALUES(direccion),
  ciudad      = VALUES(ciudad),
  telefono    = COALESCE(VALUES(telefono), telos.telefono),
  precio      = COALESCE(VALUES(precio), telos.precio),
  servicios   = IF(JSON_LENGTH(VALUES(servicios)) > 0, VALUES(servicios), telos.servicios),
  descripcion = COALESCE(VALUES(descripcion), telos.descripcion),
  rating      = COALESCE(VALUES(rating), telos.rating),
  imagen_url  = COALESCE(VALUES(imagen_url), telos.imagen_url),
  lat         = COALESCE(VALUES(lat), telos.lat),
  lng         = COALESCE(VALUES(lng), telos.lng),
  updated_at  = CURRENT_TIMESTAMP
`

const updateTeloSQL = `
UPDATE telos SET
  nombre = ?, slug = ?, direccion = ?, ciudad = ?,
  nombre_norm = ?, direccion_norm = ?, ciudad_norm = ?,
  telefono = ?, precio = ?, servicios = ?, descripcion = ?, rating = ?,
  imagen_url = ?, lat = ?, lng = ?, activo = ?, verificado = ?
WHERE id = ?`

const getTeloBySlugSQL = `SELECT` + teloColumns + `
FROM telos t
WHERE t.slug = ?`

const getTeloByIDSQL = `SELECT` + teloColumns + `
FROM telos t
WHERE t.id = ?`

const countByCitySQL = `SELECT COUNT(*) FROM telos WHERE ciudad_norm = ? AND activo = 1`

const mapPointsSQL = `
SELECT id, slug, nombre, ciudad, lat, lng, precio, rating
FROM telos
WHERE activo = 1 AND lat IS NOT NULL AND lng IS NOT NULL`

const missingCoordsSQL = `SELECT` + teloColumns + `
FROM telos t
WHERE t.activo = 1 AND (t.lat IS NULL OR t.lng IS NULL)`

// -----------------------------------------------------------------------------
// CITIES
// -----------------------------------------------------------------------------

const ensureCitySQL = `
INSERT INTO ciudades (nombre, nombre_norm, slug, provincia)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  provincia = COALESCE(ciudades.provincia, VALUES(provincia))
`

const incrementSearchSQL = `UPDATE ciudades SET busquedas = busquedas + 1 WHERE slug = ?`

// Active telo count joins on the normalized city name; there is no FK.
const citySelectSQL = `
SELECT c.id, c.nombre, c.slug, c.provincia, c.busquedas, c.created_at, c.updated_at,
       COUNT(t.id) AS telos
FROM ciudades c
LEFT JOIN telos t ON t.ciudad_norm = c.nombre_norm AND t.activo = 1
`

// -----------------------------------------------------------------------------
// STATS
// -----------------------------------------------------------------------------

const statsTotalsSQL = `
SELECT COUNT(*), COALESCE(SUM(activo), 0), COALESCE(SUM(verificado), 0)
FROM telos`

const statsCitiesSQL = `SELECT COUNT(*) FROM ciudades`

const statsBySourceSQL = `SELECT fuente, COUNT(*) FROM telos GROUP BY fuente`

const statsTopSearchedSQL = `
SELECT nombre, slug, busquedas
FROM ciudades
WHERE busquedas > 0
ORDER BY busquedas DESC, nombre
LIMIT 10`
