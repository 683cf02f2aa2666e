// ABOUTME: Flow engine executing the study delivery intake as an explicit FSM.
// ABOUTME: Invalid input re-prompts without mutating state; cancel resets to idle.

package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/clinicops/intake-gateway/internal/outbound"
	"github.com/clinicops/intake-gateway/internal/session"
)

// StateStudyDelivery is the flow collecting the data needed to deliver a
// study to a patient.
const StateStudyDelivery session.FlowState = "study_delivery"

// Steps of the study delivery flow.
const (
	StepPatientName     session.Step = "patient_name"
	StepDocument        session.Step = "document"
	StepStudyType       session.Step = "study_type"
	StepStudyDate       session.Step = "study_date"
	StepSite            session.Step = "site"
	StepDeliveryChannel session.Step = "delivery_channel"
	StepEmail           session.Step = "email"
	StepConfirm         session.Step = "confirm"
)

// Collected data fields.
const (
	FieldPatientName     session.Field = "patient_name"
	FieldDocument        session.Field = "document"
	FieldStudyType       session.Field = "study_type"
	FieldStudyDate       session.Field = "study_date"
	FieldSite            session.Field = "site"
	FieldDeliveryChannel session.Field = "delivery_channel"
	FieldEmail           session.Field = "email"
)

// Delivery channel values.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

// Input is one semantic inbound unit handed to the engine: free text, or
// an interactive selection carrying the chosen option's id and title.
type Input struct {
	Text     string
	OptionID string
}

// Result classifies what the engine did with an input.
type Result int

const (
	// NotActive means no flow was running; the caller should route the
	// input elsewhere.
	NotActive Result = iota
	// Consumed means the flow handled the input.
	Consumed
	// Cancelled means the flow ended on a cancel keyword; the caller
	// should re-display the top-level menu.
	Cancelled
)

// Case is the structured intake handed to the durable case store when the
// subscriber confirms.
type Case struct {
	ConversationKey string
	PatientName     string
	DocumentID      string
	StudyType       string
	StudyDate       string
	Site            string
	DeliveryChannel string
	Email           string
	RequestedAt     time.Time
}

// CaseCreator is the external collaborator that persists confirmed intakes
// as long-lived case records.
type CaseCreator interface {
	CreateCase(ctx context.Context, c Case) error
}

// Engine runs intake flows over the session store, sending every prompt
// through the outbound gateway.
type Engine struct {
	sessions session.Store
	gw       *outbound.Gateway
	cases    CaseCreator
	logger   *slog.Logger
}

// New creates a flow engine.
func New(sessions session.Store, gw *outbound.Gateway, cases CaseCreator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sessions: sessions,
		gw:       gw,
		cases:    cases,
		logger:   logger.With("component", "flow"),
	}
}

// Start begins the study delivery flow for the conversation, overwriting
// any prior session, and sends the first prompt.
func (e *Engine) Start(ctx context.Context, t outbound.Target) {
	prev := e.sessions.Get(ctx, t.Key)

	sess := session.Session{
		State:       StateStudyDelivery,
		Step:        StepPatientName,
		StartedAt:   time.Now().UTC(),
		LastAddress: prev.LastAddress,
	}
	if err := e.sessions.Put(ctx, t.Key, sess); err != nil {
		e.logger.Warn("failed to persist session", "key", t.Key, "error", err)
	}

	e.logger.Info("flow started", "key", t.Key, "flow", StateStudyDelivery)
	_ = e.gw.SendText(ctx, t, "Perfecto. Te voy a pedir algunos datos para enviarte el estudio.\n1) Nombre y apellido del paciente:")
}

// Handle gives the active flow first refusal on an inbound input.
func (e *Engine) Handle(ctx context.Context, t outbound.Target, in Input) Result {
	sess := e.sessions.Get(ctx, t.Key)
	if sess.State != StateStudyDelivery {
		return NotActive
	}

	if in.OptionID == "" && IsCancel(in.Text) {
		e.reset(ctx, t, sess)
		_ = e.gw.SendText(ctx, t, "Listo, cancelé la solicitud. Volvés al menú principal.")
		e.logger.Info("flow cancelled", "key", t.Key, "step", sess.Step)
		return Cancelled
	}

	spec, ok := transitions[sess.Step]
	if !ok {
		// Unknown step means the stored session predates this build; reset
		// rather than guessing.
		e.logger.Warn("session at unknown step, resetting", "key", t.Key, "step", sess.Step)
		e.reset(ctx, t, sess)
		return Cancelled
	}

	return spec.handle(e, ctx, t, sess, in)
}

// reset returns the conversation to idle, discarding collected data but
// keeping the last known delivery address.
func (e *Engine) reset(ctx context.Context, t outbound.Target, sess session.Session) {
	next := session.Idle()
	next.LastAddress = sess.LastAddress
	if err := e.sessions.Put(ctx, t.Key, next); err != nil {
		e.logger.Warn("failed to persist session", "key", t.Key, "error", err)
	}
}

// advance stores the value, moves to the next step, and sends its prompt.
func (e *Engine) advance(ctx context.Context, t outbound.Target, sess session.Session, field session.Field, value string, next session.Step) {
	sess.Set(field, value)
	sess.Step = next
	if err := e.sessions.Put(ctx, t.Key, sess); err != nil {
		e.logger.Warn("failed to persist session", "key", t.Key, "error", err)
	}
	e.prompt(ctx, t, sess)
}

// commit hands the collected data to the case creator. A creation failure
// is logged and does not reach the subscriber; the inbound record already
// exists for the operator to follow up on.
func (e *Engine) commit(ctx context.Context, t outbound.Target, sess session.Session) {
	c := Case{
		ConversationKey: t.Key,
		PatientName:     sess.Data[FieldPatientName],
		DocumentID:      sess.Data[FieldDocument],
		StudyType:       sess.Data[FieldStudyType],
		StudyDate:       sess.Data[FieldStudyDate],
		Site:            sess.Data[FieldSite],
		DeliveryChannel: sess.Data[FieldDeliveryChannel],
		Email:           sess.Data[FieldEmail],
		RequestedAt:     time.Now().UTC(),
	}
	if err := e.cases.CreateCase(ctx, c); err != nil {
		e.logger.Error("case creation failed", "key", t.Key, "error", err)
	} else {
		e.logger.Info("case created", "key", t.Key, "document", c.DocumentID)
	}
}
