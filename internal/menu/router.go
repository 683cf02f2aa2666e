// ABOUTME: Menu router mapping inbound input to actions with flow-first precedence.
// ABOUTME: Unmatched input falls back to the welcome message plus the top-level menu.

package menu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinicops/intake-gateway/internal/flow"
	"github.com/clinicops/intake-gateway/internal/outbound"
)

// action is a canonical router action.
type action int

const (
	actionNone action = iota
	actionSites
	actionStudies
	actionInsurers
	actionStartIntake
	actionUpload
	actionHuman
)

// Interactive ids of the top-level menu, in display order. The numeric
// shortcuts 1..6 follow the same order, which is also how degraded text
// menus number them.
var menuOptions = []outbound.Option{
	{ID: "BTN_SITES", Title: "Información de sedes"},
	{ID: "BTN_STUDIES", Title: "Estudios que realizamos"},
	{ID: "BTN_INSURERS", Title: "Obras sociales activas"},
	{ID: "BTN_START_INTAKE", Title: "Solicitar envío de estudio"},
	{ID: "BTN_UPLOAD", Title: "Subir orden"},
	{ID: "BTN_HUMAN", Title: "Hablar con una persona"},
}

var menuActions = map[string]action{
	"BTN_SITES":        actionSites,
	"BTN_STUDIES":      actionStudies,
	"BTN_INSURERS":     actionInsurers,
	"BTN_START_INTAKE": actionStartIntake,
	"BTN_UPLOAD":       actionUpload,
	"BTN_HUMAN":        actionHuman,
}

// synonyms is the bounded dictionary of normalized phrases mapped to
// actions. Order matters: flow-start phrases come first so that
// "enviar radiografia" never matches the generic studies entry.
var synonyms = []struct {
	phrase string
	act    action
}{
	{"envio de estudio", actionStartIntake},
	{"enviar estudio", actionStartIntake},
	{"mandar estudio", actionStartIntake},
	{"enviar radiografia", actionStartIntake},
	{"solicitar estudio", actionStartIntake},
	{"sedes", actionSites},
	{"sucursales", actionSites},
	{"direccion", actionSites},
	{"horarios", actionSites},
	{"estudios", actionStudies},
	{"obras sociales", actionInsurers},
	{"obra social", actionInsurers},
	{"subir orden", actionUpload},
	{"orden medica", actionUpload},
	{"hablar con una persona", actionHuman},
	{"humano", actionHuman},
	{"operador", actionHuman},
}

// Router resolves inbound input to replies and flow starts.
type Router struct {
	engine  *flow.Engine
	gw      *outbound.Gateway
	catalog *Catalog
	logger  *slog.Logger
}

// NewRouter creates a menu router.
func NewRouter(engine *flow.Engine, gw *outbound.Gateway, catalog *Catalog, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Router{
		engine:  engine,
		gw:      gw,
		catalog: catalog,
		logger:  logger.With("component", "menu"),
	}
}

// Route handles one inbound input for a conversation. An active flow gets
// first refusal; then the command table; anything left falls back to the
// welcome message plus the top-level menu. Route always handles the input.
func (r *Router) Route(ctx context.Context, t outbound.Target, in flow.Input) bool {
	switch r.engine.Handle(ctx, t, in) {
	case flow.Consumed:
		return true
	case flow.Cancelled:
		r.SendMainMenu(ctx, t)
		return true
	}

	if act := r.resolve(in); act != actionNone {
		r.perform(ctx, t, act)
		return true
	}

	if site, ok := r.catalog.siteByID(in.OptionID); ok {
		r.sendSiteDetail(ctx, t, site)
		return true
	}

	r.sendWelcome(ctx, t)
	return true
}

// resolve maps input to a canonical action, or actionNone.
func (r *Router) resolve(in flow.Input) action {
	if in.OptionID != "" {
		return menuActions[in.OptionID]
	}

	text := flow.NormalizeText(in.Text)
	if text == "" {
		return actionNone
	}

	// Numeric shortcuts follow menu display order
	for i := range menuOptions {
		if text == fmt.Sprintf("%d", i+1) {
			return menuActions[menuOptions[i].ID]
		}
	}

	for _, s := range synonyms {
		if strings.Contains(text, s.phrase) {
			return s.act
		}
	}
	return actionNone
}

func (r *Router) perform(ctx context.Context, t outbound.Target, act action) {
	switch act {
	case actionSites:
		r.sendSitesList(ctx, t)
	case actionStudies:
		_ = r.gw.SendText(ctx, t, r.catalog.Studies)
	case actionInsurers:
		_ = r.gw.SendText(ctx, t, r.catalog.Insurers)
	case actionStartIntake:
		r.engine.Start(ctx, t)
	case actionUpload:
		_ = r.gw.SendText(ctx, t, r.catalog.UploadAck)
	case actionHuman:
		_ = r.gw.SendText(ctx, t, r.catalog.Handoff)
		r.logger.Info("handoff requested", "key", t.Key)
	}
}

// AcknowledgeUpload confirms receipt of an inbound order photo or file.
func (r *Router) AcknowledgeUpload(ctx context.Context, t outbound.Target) {
	_ = r.gw.SendText(ctx, t, r.catalog.UploadAck)
}

// SendMainMenu sends the top-level menu buttons.
func (r *Router) SendMainMenu(ctx context.Context, t outbound.Target) {
	_ = r.gw.SendButtons(ctx, t, r.catalog.MenuTitle, menuOptions)
}

// sendWelcome sends the greeting followed by the top-level menu.
func (r *Router) sendWelcome(ctx context.Context, t outbound.Target) {
	_ = r.gw.SendText(ctx, t, r.catalog.Welcome)
	r.SendMainMenu(ctx, t)
}

// sendSitesList sends the locations directory as an interactive list.
func (r *Router) sendSitesList(ctx context.Context, t outbound.Target) {
	rows := make([]outbound.Option, 0, len(r.catalog.Sites))
	for _, s := range r.catalog.Sites {
		rows = append(rows, outbound.Option{ID: s.ID, Title: s.Name, Description: s.Address})
	}
	_ = r.gw.SendList(ctx, t,
		"Información de sedes",
		"Elegí una sede para ver dirección, contacto y horarios:",
		"Elegir sede",
		rows,
	)
}

func (r *Router) sendSiteDetail(ctx context.Context, t outbound.Target, site Site) {
	body := fmt.Sprintf("%s\n📍 %s\n📞 %s\n🕒 %s\n\n%s",
		site.Name, site.Address, site.Phone, site.Hours, r.catalog.Footer)
	_ = r.gw.SendText(ctx, t, body)
}
