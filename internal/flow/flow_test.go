// ABOUTME: Tests for the study delivery flow engine.
// ABOUTME: Covers step advancement, re-prompting, cancellation, and case commit.

package flow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicops/intake-gateway/internal/chatlog"
	"github.com/clinicops/intake-gateway/internal/outbound"
	"github.com/clinicops/intake-gateway/internal/session"
)

type stubProvider struct {
	nextID int
}

func (s *stubProvider) id() string {
	s.nextID++
	return fmt.Sprintf("wamid.out.%d", s.nextID)
}

func (s *stubProvider) SendText(context.Context, string, string) (string, error) {
	return s.id(), nil
}
func (s *stubProvider) SendButtons(context.Context, string, string, []outbound.Option) (string, error) {
	return s.id(), nil
}
func (s *stubProvider) SendList(context.Context, string, string, string, string, []outbound.Option) (string, error) {
	return s.id(), nil
}
func (s *stubProvider) SendMedia(context.Context, string, outbound.MediaKind, string, string) (string, error) {
	return s.id(), nil
}

type recordingCases struct {
	created []Case
	err     error
}

func (r *recordingCases) CreateCase(_ context.Context, c Case) error {
	r.created = append(r.created, c)
	return r.err
}

type flowFixture struct {
	engine   *Engine
	sessions *session.MemoryStore
	log      *chatlog.MemoryLog
	cases    *recordingCases
	target   outbound.Target
}

func setupFlow(t *testing.T) *flowFixture {
	t.Helper()
	sessions := session.NewMemoryStore(time.Hour)
	log := chatlog.NewMemoryLog(500)
	gw := outbound.NewGateway(&stubProvider{}, log, nil)
	cases := &recordingCases{}
	return &flowFixture{
		engine:   New(sessions, gw, cases, nil),
		sessions: sessions,
		log:      log,
		cases:    cases,
		target:   outbound.Target{Key: "+541170000001", Address: "541170000001"},
	}
}

func (f *flowFixture) step(t *testing.T) session.Step {
	t.Helper()
	return f.sessions.Get(context.Background(), f.target.Key).Step
}

func text(s string) Input    { return Input{Text: s} }
func option(id string) Input { return Input{OptionID: id} }

func TestEngine_StartSetsFirstStepAndPrompts(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	f.engine.Start(ctx, f.target)

	sess := f.sessions.Get(ctx, f.target.Key)
	assert.Equal(t, StateStudyDelivery, sess.State)
	assert.Equal(t, StepPatientName, sess.Step)
	assert.False(t, sess.StartedAt.IsZero())

	msgs, err := f.log.History(ctx, f.target.Key, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Nombre y apellido")
}

func TestEngine_NotActiveWhenIdle(t *testing.T) {
	f := setupFlow(t)
	assert.Equal(t, NotActive, f.engine.Handle(context.Background(), f.target, text("hola")))
}

func TestEngine_DocumentStepValidation(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	f.engine.Start(ctx, f.target)
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("Ana Pérez")))
	require.Equal(t, StepDocument, f.step(t))

	// Letters fail the digit rule: re-prompt, no advance, no data change
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("abc")))
	sess := f.sessions.Get(ctx, f.target.Key)
	assert.Equal(t, StepDocument, sess.Step)
	assert.Empty(t, sess.Data[FieldDocument])

	// Too short and too long are also rejected
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("12345")))
	assert.Equal(t, StepDocument, f.step(t))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("1234567890")))
	assert.Equal(t, StepDocument, f.step(t))

	// Valid document advances
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("12345678")))
	sess = f.sessions.Get(ctx, f.target.Key)
	assert.Equal(t, StepStudyType, sess.Step)
	assert.Equal(t, "12345678", sess.Data[FieldDocument])
}

func TestEngine_DocumentAcceptsFormattedDigits(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	f.engine.Start(ctx, f.target)
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("Ana Pérez")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("30.123.456")))

	sess := f.sessions.Get(ctx, f.target.Key)
	assert.Equal(t, StepStudyType, sess.Step)
	assert.Equal(t, "30123456", sess.Data[FieldDocument])
}

func TestEngine_DateIsNormalized(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	f.engine.Start(ctx, f.target)
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("Ana Pérez")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("30123456")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("panorámica")))
	require.Equal(t, StepStudyDate, f.step(t))

	// Nonsense date re-prompts
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("ayer")))
	assert.Equal(t, StepStudyDate, f.step(t))

	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("15/03/2026")))
	sess := f.sessions.Get(ctx, f.target.Key)
	assert.Equal(t, "2026-03-15", sess.Data[FieldStudyDate])
	assert.Equal(t, StepSite, sess.Step)
}

func TestEngine_CompleteFlowCreatesCaseOnce(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	f.engine.Start(ctx, f.target)
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("Ana Pérez")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("30123456")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("panorámica")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("2026-03-15")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, option("SITE_QUILMES")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, option("CH_WHATSAPP")))
	require.Equal(t, StepConfirm, f.step(t))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, option("CONFIRM_YES")))

	require.Len(t, f.cases.created, 1)
	c := f.cases.created[0]
	assert.Equal(t, "Ana Pérez", c.PatientName)
	assert.Equal(t, "30123456", c.DocumentID)
	assert.Equal(t, "panorámica", c.StudyType)
	assert.Equal(t, "2026-03-15", c.StudyDate)
	assert.Equal(t, "Quilmes", c.Site)
	assert.Equal(t, ChannelWhatsApp, c.DeliveryChannel)

	assert.True(t, f.sessions.Get(ctx, f.target.Key).IsIdle())
}

func TestEngine_EmailChannelRequiresAddress(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	f.engine.Start(ctx, f.target)
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("Ana Pérez")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("30123456")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("panorámica")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("15/03/2026")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("lomas")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, option("CH_EMAIL")))
	require.Equal(t, StepEmail, f.step(t))

	// Malformed address re-prompts
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("not-an-email")))
	assert.Equal(t, StepEmail, f.step(t))

	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("ana@example.com")))
	require.Equal(t, StepConfirm, f.step(t))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("si")))

	require.Len(t, f.cases.created, 1)
	assert.Equal(t, "ana@example.com", f.cases.created[0].Email)
	assert.Equal(t, "Lomas de Zamora", f.cases.created[0].Site)
}

func TestEngine_NegativeConfirmationSkipsCaseCreation(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	f.engine.Start(ctx, f.target)
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("Ana Pérez")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("30123456")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("panorámica")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("15/03/2026")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, option("SITE_AVELLANEDA")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, option("CH_WHATSAPP")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("no")))

	assert.Empty(t, f.cases.created)
	assert.True(t, f.sessions.Get(ctx, f.target.Key).IsIdle())
}

func TestEngine_CancelDiscardsDataFromAnyStep(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	f.engine.Start(ctx, f.target)
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("Ana Pérez")))
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("30123456")))

	result := f.engine.Handle(ctx, f.target, text("cancelar"))
	assert.Equal(t, Cancelled, result)

	sess := f.sessions.Get(ctx, f.target.Key)
	assert.True(t, sess.IsIdle())
	assert.Empty(t, sess.Data)
	assert.Empty(t, f.cases.created)
}

func TestEngine_GibberishNeverDesyncsStepAndData(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	f.engine.Start(ctx, f.target)
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("Ana Pérez")))

	steps := []struct {
		valid Input
		after session.Step
	}{
		{text("30123456"), StepStudyType},
		{text("panorámica"), StepStudyDate},
		{text("15/03/2026"), StepSite},
		{option("SITE_QUILMES"), StepDeliveryChannel},
		{option("CH_WHATSAPP"), StepConfirm},
	}
	for _, s := range steps {
		before := f.sessions.Get(ctx, f.target.Key)
		require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("???")))
		mid := f.sessions.Get(ctx, f.target.Key)
		assert.Equal(t, before.Step, mid.Step)
		assert.Equal(t, before.Data, mid.Data)

		require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, s.valid))
		assert.Equal(t, s.after, f.step(t))
	}
}

func TestEngine_EveryTransitionSendsOnePrompt(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	f.engine.Start(ctx, f.target)
	count := func() int {
		msgs, err := f.log.History(ctx, f.target.Key, 100)
		require.NoError(t, err)
		return len(msgs)
	}
	require.Equal(t, 1, count())

	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("Ana Pérez")))
	assert.Equal(t, 2, count())
	require.Equal(t, Consumed, f.engine.Handle(ctx, f.target, text("30123456")))
	assert.Equal(t, 3, count())
}
