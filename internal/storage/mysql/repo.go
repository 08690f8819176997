package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"
	"golang.org/x/sync/errgroup"

	"telos_booking/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valJSON(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

const maxMapPoints = 2000

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func teloArgs(t domain.Telo) []any {
	k := domain.KeyOf(t.Nombre, t.Direccion, t.Ciudad)
	return []any{
		t.Nombre,
		t.Slug,
		t.Direccion,
		t.Ciudad,
		k.Nombre,
		k.Direccion,
		k.Ciudad,
		valStr(t.Telefono),
		valF64(t.Precio),
		valJSON(t.Servicios),
		valStr(t.Descripcion),
		valF64(t.Rating),
		valStr(t.ImagenURL),
		valF64(t.Lat),
		valF64(t.Lng),
		t.Activo,
		t.Verificado,
		t.Fuente,
	}
}

// UpsertTelos writes the batch in one transaction, one statement per row so
// rows-affected tells inserts (1) from matches (2 changed, 0 unchanged).
func (r *Repo) UpsertTelos(ctx context.Context, ts []domain.Telo) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	if len(ts) == 0 {
		return res, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertTeloSQL+upsertTeloOnDup)
	if err != nil {
		return res, err
	}
	defer stmt.Close()

	for _, t := range ts {
		out, err := stmt.ExecContext(ctx, teloArgs(t)...)
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("upsert telo %q: %w", t.Slug, err)
		}
		n, _ := out.RowsAffected()
		switch n {
		case 1:
			res.Inserted++
		default:
			res.Updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.UpsertResult{}, err
	}
	return res, nil
}

func (r *Repo) CreateTelo(ctx context.Context, t domain.Telo) (domain.Telo, error) {
	out, err := r.db.ExecContext(ctx, insertTeloSQL, teloArgs(t)...)
	if err != nil {
		return domain.Telo{}, mapWriteErr(err)
	}
	id, err := out.LastInsertId()
	if err != nil {
		return domain.Telo{}, err
	}
	return r.GetTeloByID(ctx, id)
}

func (r *Repo) UpdateTelo(ctx context.Context, id int64, p domain.TeloPatch) (domain.Telo, error) {
	cur, err := r.GetTeloByID(ctx, id)
	if err != nil {
		return domain.Telo{}, err
	}
	applyPatch(&cur, p)
	if err := cur.Sanitize(); err != nil {
		return domain.Telo{}, err
	}
	args := teloArgs(cur)
	// drop fuente, append id
	args = append(args[:len(args)-1], id)
	if _, err := r.db.ExecContext(ctx, updateTeloSQL, args...); err != nil {
		return domain.Telo{}, mapWriteErr(err)
	}
	return r.GetTeloByID(ctx, id)
}

func applyPatch(t *domain.Telo, p domain.TeloPatch) {
	if p.Nombre != nil {
		t.Nombre = *p.Nombre
	}
	if p.Direccion != nil {
		t.Direccion = *p.Direccion
	}
	if p.Ciudad != nil {
		t.Ciudad = *p.Ciudad
	}
	if p.Telefono != nil {
		t.Telefono = p.Telefono
	}
	if p.Precio != nil {
		t.Precio = p.Precio
	}
	if p.Servicios != nil {
		t.Servicios = *p.Servicios
	}
	if p.Descripcion != nil {
		t.Descripcion = p.Descripcion
	}
	if p.Rating != nil {
		t.Rating = p.Rating
	}
	if p.ImagenURL != nil {
		t.ImagenURL = p.ImagenURL
	}
	if p.Lat != nil && p.Lng != nil {
		t.Lat, t.Lng = p.Lat, p.Lng
	}
	if p.Activo != nil {
		t.Activo = *p.Activo
	}
	if p.Verificado != nil {
		t.Verificado = *p.Verificado
	}
}

func (r *Repo) DeactivateTelo(ctx context.Context, id int64) (domain.Telo, error) {
	if _, err := r.db.ExecContext(ctx, `UPDATE telos SET activo = 0 WHERE id = ?`, id); err != nil {
		return domain.Telo{}, err
	}
	// zero rows affected is either missing or already inactive; the read decides
	return r.GetTeloByID(ctx, id)
}

func (r *Repo) SetCoords(ctx context.Context, id int64, c domain.Coords) error {
	_, err := r.db.ExecContext(ctx, `UPDATE telos SET lat = ?, lng = ? WHERE id = ?`, c.Lat, c.Lng, id)
	return err
}

func mapWriteErr(err error) error {
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return fmt.Errorf("%w: a telo with the same name, address and city exists", domain.ErrConflict)
	}
	return err
}

// -----------------------------------------------------------------------------
// READS
// -----------------------------------------------------------------------------

type scanner interface{ Scan(dest ...any) error }

func scanTelo(s scanner) (domain.Telo, error) {
	var t domain.Telo
	var telefono, descripcion, imagen sql.NullString
	var precio, rating, lat, lng sql.NullFloat64
	var servicios []byte

	if err := s.Scan(
		&t.ID,
		&t.Nombre,
		&t.Slug,
		&t.Direccion,
		&t.Ciudad,
		&telefono,
		&precio,
		&servicios,
		&descripcion,
		&rating,
		&imagen,
		&lat, &lng,
		&t.Activo,
		&t.Verificado,
		&t.Fuente,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return domain.Telo{}, err
	}
	t.Telefono = nullStr(telefono)
	t.Descripcion = nullStr(descripcion)
	t.ImagenURL = nullStr(imagen)
	t.Precio = nullF64(precio)
	t.Rating = nullF64(rating)
	if lat.Valid && lng.Valid {
		t.Lat, t.Lng = nullF64(lat), nullF64(lng)
	}
	_ = json.Unmarshal(servicios, &t.Servicios)
	if t.Servicios == nil {
		t.Servicios = []string{}
	}
	return t, nil
}

func nullStr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func nullF64(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}

func (r *Repo) getTelo(ctx context.Context, q string, arg any) (domain.Telo, error) {
	t, err := scanTelo(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Telo{}, domain.ErrNotFound
	}
	return t, err
}

func (r *Repo) GetTeloBySlug(ctx context.Context, slug string) (domain.Telo, error) {
	return r.getTelo(ctx, getTeloBySlugSQL, slug)
}

func (r *Repo) GetTeloByID(ctx context.Context, id int64) (domain.Telo, error) {
	return r.getTelo(ctx, getTeloByIDSQL, id)
}

// cityNorm accepts either a display name or a slug.
func cityNorm(s string) string {
	return domain.Normalize(strings.ReplaceAll(s, "-", " "))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// buildTelosWhere returns the WHERE clause (with leading " WHERE") and args.
func buildTelosWhere(q domain.TelosQuery) (string, []any) {
	var conds []string
	var args []any
	if !q.IncluirInactivo {
		conds = append(conds, "t.activo = 1")
	}
	if q.Ciudad != nil && strings.TrimSpace(*q.Ciudad) != "" {
		conds = append(conds, "t.ciudad_norm = ?")
		args = append(args, cityNorm(*q.Ciudad))
	}
	if q.Q != nil && strings.TrimSpace(*q.Q) != "" {
		like := "%" + escapeLike(strings.TrimSpace(*q.Q)) + "%"
		conds = append(conds, "(t.nombre LIKE ? OR t.direccion LIKE ? OR t.descripcion LIKE ?)")
		args = append(args, like, like, like)
	}
	if q.PrecioMin != nil {
		conds = append(conds, "t.precio >= ?")
		args = append(args, *q.PrecioMin)
	}
	if q.PrecioMax != nil {
		conds = append(conds, "t.precio <= ?")
		args = append(args, *q.PrecioMax)
	}
	if q.RatingMin != nil {
		conds = append(conds, "t.rating >= ?")
		args = append(args, *q.RatingMin)
	}
	if q.Servicio != nil && strings.TrimSpace(*q.Servicio) != "" {
		conds = append(conds, "JSON_CONTAINS(t.servicios, JSON_QUOTE(?))")
		args = append(args, strings.ToLower(strings.TrimSpace(*q.Servicio)))
	}
	if q.Verificado != nil {
		conds = append(conds, "t.verificado = ?")
		args = append(args, *q.Verificado)
	}
	if q.ConCoordenadas {
		conds = append(conds, "t.lat IS NOT NULL AND t.lng IS NOT NULL")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(orden string) string {
	switch orden {
	case "rating":
		return " ORDER BY t.rating IS NULL, t.rating DESC, t.id"
	case "precio":
		return " ORDER BY t.precio IS NULL, t.precio ASC, t.id"
	case "nombre":
		return " ORDER BY t.nombre ASC, t.id"
	case "recientes":
		return " ORDER BY t.created_at DESC, t.id DESC"
	default:
		return " ORDER BY t.verificado DESC, t.rating IS NULL, t.rating DESC, t.id"
	}
}

func (r *Repo) ListTelos(ctx context.Context, q domain.TelosQuery) (domain.TelosPage, error) {
	q.Clamp()
	where, args := buildTelosWhere(q)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM telos t"+where, args...).Scan(&total); err != nil {
		return domain.TelosPage{}, err
	}

	page := domain.TelosPage{Items: []domain.Telo{}, Total: total, Page: q.Page, Limit: q.Limit}
	if total == 0 {
		return page, nil
	}

	listSQL := "SELECT" + teloColumns + "\nFROM telos t" + where + orderBy(q.Orden) + " LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, listSQL, append(args, q.Limit, (q.Page-1)*q.Limit)...)
	if err != nil {
		return domain.TelosPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTelo(rows)
		if err != nil {
			return domain.TelosPage{}, err
		}
		page.Items = append(page.Items, t)
	}
	if err := rows.Err(); err != nil {
		return domain.TelosPage{}, err
	}
	return page, nil
}

func (r *Repo) CountTelosByCity(ctx context.Context, ciudad string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countByCitySQL, cityNorm(ciudad)).Scan(&n)
	return n, err
}

func (r *Repo) MapPoints(ctx context.Context, ciudad string) ([]domain.MapPoint, error) {
	q := mapPointsSQL
	var args []any
	if strings.TrimSpace(ciudad) != "" {
		q += " AND ciudad_norm = ?"
		args = append(args, cityNorm(ciudad))
	}
	q += " ORDER BY id LIMIT ?"
	args = append(args, maxMapPoints)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.MapPoint{}
	for rows.Next() {
		var p domain.MapPoint
		var precio, rating sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Slug, &p.Nombre, &p.Ciudad, &p.Lat, &p.Lng, &precio, &rating); err != nil {
			return nil, err
		}
		p.Precio = nullF64(precio)
		p.Rating = nullF64(rating)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) MissingCoords(ctx context.Context, ciudad string, limit int) ([]domain.Telo, error) {
	q := missingCoordsSQL
	var args []any
	if strings.TrimSpace(ciudad) != "" {
		q += " AND t.ciudad_norm = ?"
		args = append(args, cityNorm(ciudad))
	}
	if limit <= 0 || limit > domain.MaxPageLimit {
		limit = domain.MaxPageLimit
	}
	q += " ORDER BY t.id LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Telo
	for rows.Next() {
		t, err := scanTelo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// CITIES
// -----------------------------------------------------------------------------

func scanCity(s scanner) (domain.Ciudad, error) {
	var c domain.Ciudad
	var provincia sql.NullString
	if err := s.Scan(&c.ID, &c.Nombre, &c.Slug, &provincia, &c.Busquedas, &c.CreatedAt, &c.UpdatedAt, &c.Telos); err != nil {
		return domain.Ciudad{}, err
	}
	c.Provincia = nullStr(provincia)
	return c, nil
}

func (r *Repo) EnsureCity(ctx context.Context, nombre string, provincia *string) (domain.Ciudad, error) {
	slug := domain.Slugify(nombre)
	if _, err := r.db.ExecContext(ctx, ensureCitySQL, nombre, domain.Normalize(nombre), slug, valStr(provincia)); err != nil {
		return domain.Ciudad{}, err
	}
	return r.GetCityBySlug(ctx, slug)
}

func (r *Repo) IncrementSearch(ctx context.Context, slug string) (domain.Ciudad, error) {
	out, err := r.db.ExecContext(ctx, incrementSearchSQL, slug)
	if err != nil {
		return domain.Ciudad{}, err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return domain.Ciudad{}, domain.ErrNotFound
	}
	return r.GetCityBySlug(ctx, slug)
}

func (r *Repo) ListCities(ctx context.Context, orden string) ([]domain.Ciudad, error) {
	order := " ORDER BY c.nombre"
	if orden == "busquedas" {
		order = " ORDER BY c.busquedas DESC, c.nombre"
	}
	rows, err := r.db.QueryContext(ctx, citySelectSQL+" GROUP BY c.id"+order)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Ciudad{}
	for rows.Next() {
		c, err := scanCity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) GetCityBySlug(ctx context.Context, slug string) (domain.Ciudad, error) {
	c, err := scanCity(r.db.QueryRowContext(ctx, citySelectSQL+" WHERE c.slug = ? GROUP BY c.id", slug))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ciudad{}, domain.ErrNotFound
	}
	return c, err
}

// -----------------------------------------------------------------------------
// STATS
// -----------------------------------------------------------------------------

func (r *Repo) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	st.PorFuente = map[string]int{}
	st.TopBuscadas = []domain.CityCount{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.db.QueryRowContext(ctx, statsTotalsSQL).Scan(&st.TotalTelos, &st.TelosActivos, &st.TelosVerificados)
	})
	g.Go(func() error {
		return r.db.QueryRowContext(ctx, statsCitiesSQL).Scan(&st.TotalCiudades)
	})
	g.Go(func() error {
		rows, err := r.db.QueryContext(ctx, statsBySourceSQL)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var src string
			var n int
			if err := rows.Scan(&src, &n); err != nil {
				return err
			}
			st.PorFuente[src] = n
		}
		return rows.Err()
	})
	g.Go(func() error {
		rows, err := r.db.QueryContext(ctx, statsTopSearchedSQL)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c domain.CityCount
			if err := rows.Scan(&c.Nombre, &c.Slug, &c.Busquedas); err != nil {
				return err
			}
			st.TopBuscadas = append(st.TopBuscadas, c)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return domain.Stats{}, err
	}
	return st, nil
}
