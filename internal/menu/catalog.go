// ABOUTME: Static content catalog for menus, sites, studies, and canned replies.
// ABOUTME: Loaded from a TOML file; ships with a built-in default.

package menu

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Site is one entry of the locations directory.
type Site struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Address string `toml:"address"`
	Phone   string `toml:"phone"`
	Hours   string `toml:"hours"`
}

// Catalog holds every static text the router can reply with.
type Catalog struct {
	ClinicName string `toml:"clinic_name"`
	Footer     string `toml:"footer"`
	Welcome    string `toml:"welcome"`
	MenuTitle  string `toml:"menu_title"`
	Studies    string `toml:"studies"`
	Insurers   string `toml:"insurers"`
	Handoff    string `toml:"handoff"`
	UploadAck  string `toml:"upload_ack"`
	Sites      []Site `toml:"sites"`
}

// LoadCatalog reads a catalog from a TOML file. An empty path returns the
// built-in default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	var c Catalog
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("loading menu catalog: %w", err)
	}
	if len(c.Sites) == 0 {
		c.Sites = DefaultCatalog().Sites
	}
	return &c, nil
}

// DefaultCatalog returns the built-in content.
func DefaultCatalog() *Catalog {
	return &Catalog{
		ClinicName: "Centro de Diagnóstico Dental",
		Footer:     "Atención SIN TURNO, por orden de llegada",
		Welcome: "¡Hola! 👋 Gracias por escribirnos.\n\n" +
			"🕒 Horarios (todas las sedes)\n" +
			"• Lun a Vie: 09:00 a 17:30\n" +
			"• Sáb: 09:00 a 12:30\n\n" +
			"📌 SIN TURNO, por orden de llegada.",
		MenuTitle: "Elegí una opción:",
		Studies: "Realizamos, entre otros:\n" +
			"• Panorámica\n• Periapical\n• Telerradiografía\n• Tomografía Cone Beam\n\n" +
			"Consultá por estudios especiales en recepción.",
		Insurers: "Obras sociales activas:\n" +
			"• OSDE\n• Swiss Medical\n• IOMA\n• PAMI\n\n" +
			"Si la tuya no figura, consultanos igual.",
		Handoff: "Perfecto, le paso tu consulta a una persona del equipo. " +
			"Te responden por este mismo chat en horario de atención.",
		UploadAck: "¡Gracias! Recibimos tu orden. La revisamos y te confirmamos por acá.",
		Sites: []Site{
			{ID: "SITE_QUILMES", Name: "Quilmes", Address: "Olavarría 88", Phone: "11 7044-2131", Hours: "Lun a Vie 09:00–17:30 · Sáb 09:00–12:30"},
			{ID: "SITE_AVELLANEDA", Name: "Avellaneda", Address: "9 de Julio 64, 2° A", Phone: "11 7044-2132", Hours: "Lun a Vie 09:00–17:30 · Sáb 09:00–12:30"},
			{ID: "SITE_LOMAS", Name: "Lomas de Zamora", Address: "España 156, PB", Phone: "11 7044-2133", Hours: "Lun a Vie 09:00–17:30 · Sáb 09:00–12:30"},
		},
	}
}

// siteByID returns the site for an interactive row id.
func (c *Catalog) siteByID(id string) (Site, bool) {
	for _, s := range c.Sites {
		if s.ID == id {
			return s, true
		}
	}
	return Site{}, false
}
