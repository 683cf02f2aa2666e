// ABOUTME: Transition table and prompts for the study delivery flow.
// ABOUTME: Each step accepts exactly one semantic input and sends exactly one prompt.

package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinicops/intake-gateway/internal/outbound"
	"github.com/clinicops/intake-gateway/internal/session"
)

// Interactive option ids used by flow prompts.
const (
	optSiteQuilmes    = "SITE_QUILMES"
	optSiteAvellaneda = "SITE_AVELLANEDA"
	optSiteLomas      = "SITE_LOMAS"
	optChannelWA      = "CH_WHATSAPP"
	optChannelEmail   = "CH_EMAIL"
	optConfirmYes     = "CONFIRM_YES"
	optConfirmNo      = "CONFIRM_NO"
)

var siteOptions = []outbound.Option{
	{ID: optSiteQuilmes, Title: "Quilmes"},
	{ID: optSiteAvellaneda, Title: "Avellaneda"},
	{ID: optSiteLomas, Title: "Lomas de Zamora"},
}

var channelOptions = []outbound.Option{
	{ID: optChannelWA, Title: "Por WhatsApp"},
	{ID: optChannelEmail, Title: "Por email"},
}

var confirmOptions = []outbound.Option{
	{ID: optConfirmYes, Title: "Sí, es correcto"},
	{ID: optConfirmNo, Title: "No, cancelar"},
}

type stepSpec struct {
	handle func(e *Engine, ctx context.Context, t outbound.Target, sess session.Session, in Input) Result
}

// textStep builds the common free-text step: validate, then advance or
// re-prompt the same step without touching the session.
func textStep(field session.Field, validate func(string) (string, bool), invalidMsg string, next session.Step) stepSpec {
	return stepSpec{
		handle: func(e *Engine, ctx context.Context, t outbound.Target, sess session.Session, in Input) Result {
			value, ok := validate(in.Text)
			if !ok {
				_ = e.gw.SendText(ctx, t, invalidMsg)
				return Consumed
			}
			e.advance(ctx, t, sess, field, value, next)
			return Consumed
		},
	}
}

var transitions = map[session.Step]stepSpec{
	StepPatientName: textStep(FieldPatientName, ValidName,
		"Por favor, indicá nombre y apellido válidos.", StepDocument),

	StepDocument: textStep(FieldDocument, ValidDocument,
		"El número de documento debe tener entre 6 y 9 dígitos. Probá de nuevo:", StepStudyType),

	StepStudyType: textStep(FieldStudyType, ValidName,
		"Indicá el tipo de estudio (por ej.: panorámica, periapical):", StepStudyDate),

	StepStudyDate: textStep(FieldStudyDate, NormalizeDate,
		"No pude leer la fecha. Usá el formato dd/mm/aaaa:", StepSite),

	StepSite: {
		handle: func(e *Engine, ctx context.Context, t outbound.Target, sess session.Session, in Input) Result {
			site, ok := matchOption(in, siteOptions)
			if !ok {
				_ = e.gw.SendText(ctx, t, "Elegí una de las sedes: Quilmes, Avellaneda o Lomas de Zamora.")
				return Consumed
			}
			e.advance(ctx, t, sess, FieldSite, site.Title, StepDeliveryChannel)
			return Consumed
		},
	},

	StepDeliveryChannel: {
		handle: func(e *Engine, ctx context.Context, t outbound.Target, sess session.Session, in Input) Result {
			channel, ok := matchChannel(in)
			if !ok {
				_ = e.gw.SendText(ctx, t, "Elegí cómo preferís recibirlo: por WhatsApp o por email.")
				return Consumed
			}
			next := StepConfirm
			if channel == ChannelEmail {
				next = StepEmail
			}
			e.advance(ctx, t, sess, FieldDeliveryChannel, channel, next)
			return Consumed
		},
	},

	StepEmail: textStep(FieldEmail, ValidEmail,
		"Esa dirección no parece válida. Indicá un email como nombre@dominio.com:", StepConfirm),

	StepConfirm: {
		handle: func(e *Engine, ctx context.Context, t outbound.Target, sess session.Session, in Input) Result {
			confirmed, ok := parseConfirmInput(in)
			if !ok {
				_ = e.gw.SendText(ctx, t, "Respondé SÍ para confirmar o NO para cancelar.")
				return Consumed
			}
			e.reset(ctx, t, sess)
			if confirmed {
				e.commit(ctx, t, sess)
				_ = e.gw.SendText(ctx, t, "¡Listo! Registramos tu solicitud. En breve te enviamos el estudio. ¡Gracias!")
			} else {
				_ = e.gw.SendText(ctx, t, "Entendido, no registré la solicitud. Si querés empezar de nuevo, escribí: Envío de estudio")
			}
			return Consumed
		},
	},
}

// prompt sends the single outbound prompt for the session's current step.
func (e *Engine) prompt(ctx context.Context, t outbound.Target, sess session.Session) {
	switch sess.Step {
	case StepPatientName:
		_ = e.gw.SendText(ctx, t, "1) Nombre y apellido del paciente:")
	case StepDocument:
		_ = e.gw.SendText(ctx, t, "2) Número de documento del paciente (solo números):")
	case StepStudyType:
		_ = e.gw.SendText(ctx, t, "3) Tipo de estudio (por ej.: panorámica, periapical, telerradiografía):")
	case StepStudyDate:
		_ = e.gw.SendText(ctx, t, "4) Fecha del estudio (dd/mm/aaaa):")
	case StepSite:
		_ = e.gw.SendButtons(ctx, t, "5) ¿En qué sede se realizó el estudio?", siteOptions)
	case StepDeliveryChannel:
		_ = e.gw.SendButtons(ctx, t, "6) ¿Cómo preferís recibirlo?", channelOptions)
	case StepEmail:
		_ = e.gw.SendText(ctx, t, "Indicá la dirección de email donde lo enviamos:")
	case StepConfirm:
		_ = e.gw.SendButtons(ctx, t, confirmSummary(sess), confirmOptions)
	}
}

// confirmSummary renders the collected data for the final check.
func confirmSummary(sess session.Session) string {
	var b strings.Builder
	b.WriteString("¡Gracias! Confirmá por favor:\n")
	fmt.Fprintf(&b, "• Paciente: %s\n", sess.Data[FieldPatientName])
	fmt.Fprintf(&b, "• Documento: %s\n", sess.Data[FieldDocument])
	fmt.Fprintf(&b, "• Estudio: %s\n", sess.Data[FieldStudyType])
	fmt.Fprintf(&b, "• Fecha: %s\n", sess.Data[FieldStudyDate])
	fmt.Fprintf(&b, "• Sede: %s\n", sess.Data[FieldSite])
	fmt.Fprintf(&b, "• Entrega: %s", sess.Data[FieldDeliveryChannel])
	if email := sess.Data[FieldEmail]; email != "" {
		fmt.Fprintf(&b, " (%s)", email)
	}
	b.WriteString("\n\n¿Está todo correcto?")
	return b.String()
}

// matchOption resolves an input against interactive options: by option id
// for button replies, by folded title match for free text.
func matchOption(in Input, options []outbound.Option) (outbound.Option, bool) {
	if in.OptionID != "" {
		for _, opt := range options {
			if opt.ID == in.OptionID {
				return opt, true
			}
		}
		return outbound.Option{}, false
	}

	text := NormalizeText(in.Text)
	if text == "" {
		return outbound.Option{}, false
	}
	for _, opt := range options {
		title := NormalizeText(opt.Title)
		if text == title {
			return opt, true
		}
		// Substring matching only for inputs long enough to be meaningful
		if len(text) >= 3 && (strings.Contains(title, text) || strings.Contains(text, title)) {
			return opt, true
		}
	}
	return outbound.Option{}, false
}

func matchChannel(in Input) (string, bool) {
	switch in.OptionID {
	case optChannelWA:
		return ChannelWhatsApp, true
	case optChannelEmail:
		return ChannelEmail, true
	}
	text := NormalizeText(in.Text)
	switch {
	case strings.Contains(text, "whatsapp"), text == "1":
		return ChannelWhatsApp, true
	case strings.Contains(text, "mail"), strings.Contains(text, "correo"), text == "2":
		return ChannelEmail, true
	}
	return "", false
}

func parseConfirmInput(in Input) (confirmed, ok bool) {
	switch in.OptionID {
	case optConfirmYes:
		return true, true
	case optConfirmNo:
		return false, true
	}
	if in.OptionID != "" {
		return false, false
	}
	return ParseConfirmation(in.Text)
}
