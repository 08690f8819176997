package httpserver

import (
	"encoding/xml"
	"net/http"

	"github.com/rs/zerolog/log"

	"telos_booking/internal/domain"
)

// sitemap pages through at most this many telos
const sitemapMaxPages = 50

var staticPaths = []string{"/", "/ciudades", "/mapa", "/buscar"}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

func (h *Handlers) sitemap(w http.ResponseWriter, r *http.Request) {
	set := urlset{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range staticPaths {
		set.URLs = append(set.URLs, sitemapURL{Loc: h.BaseURL + p, ChangeFreq: "daily", Priority: "1.0"})
	}

	cs, _ := h.Q.ListCities(r.Context(), "nombre")
	for _, c := range cs {
		set.URLs = append(set.URLs, sitemapURL{Loc: h.BaseURL + "/ciudad/" + c.Slug, ChangeFreq: "weekly", Priority: "0.8"})
	}

	// mock listings have no stable page of their own
	for page := 1; page <= sitemapMaxPages; page++ {
		res := h.Q.ListTelos(r.Context(), domain.TelosQuery{Orden: "recientes", Page: page, Limit: domain.MaxPageLimit})
		if res.Fuente == domain.SourceMock {
			break
		}
		for _, t := range res.Items {
			set.URLs = append(set.URLs, sitemapURL{
				Loc:      h.BaseURL + "/telo/" + t.Slug,
				LastMod:  t.UpdatedAt.UTC().Format("2006-01-02"),
				Priority: "0.6",
			})
		}
		if len(res.Items) < res.Limit {
			break
		}
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		log.Error().Err(err).Msg("write sitemap failed")
	}
}
