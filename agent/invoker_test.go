package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/internal/testutil"
	"github.com/hupe1980/invoicemesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testDescriptor(name string) core.AgentDescriptor {
	return core.AgentDescriptor{
		Name:            name,
		Specializations: []string{"header", "amounts"},
		Enabled:         true,
		Weight:          1.0,
		Timeout:         time.Second,
		MaxRetries:      2,
		MaxTokens:       900,
		UsesModel:       true,
		Role:            "You are a test extractor.",
		PromptTemplate:  "Extract the fields.{{if .Text}}\nText:\n{{.Text}}{{end}}",
		CriticalFields:  []string{core.FieldInvoiceNumber, core.FieldTotalAmount},
		BonusFields:     []string{core.FieldCurrency},
	}
}

func newTestInvoker(b model.Model) *Invoker {
	return NewInvoker(b, func(o *InvokerOptions) {
		o.BaseBackoff = 0
		o.MaxBackoff = 0
	})
}

func TestInvoke_Success(t *testing.T) {
	b := new(testutil.MockBackend)
	b.On("Complete", mock.Anything, mock.Anything).
		Return(testutil.JSON("```json\n{\"invoiceNumber\":\"0001-00000042\",\"totalAmount\":121.0,\"confidence\":88,\"conflicts\":[\"tax rate unclear\"]}\n```"), nil).
		Once()

	doc := testutil.NewDocumentBuilder("f.pdf").Text("FACTURA 0001-00000042 TOTAL 121,00").Pages(2).Build()
	inv := newTestInvoker(b).Invoke(context.Background(), testDescriptor("structural"), Input{Document: doc, Iteration: 1})

	r := inv.Result
	assert.Equal(t, "structural", r.AgentName)
	assert.Equal(t, 88, r.Confidence)
	assert.False(t, r.Fallback)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, []string{"tax rate unclear"}, r.Conflicts)
	assert.Equal(t, "0001-00000042", r.Data[core.FieldInvoiceNumber])
	assert.NotContains(t, r.Data, core.FieldConfidence)
	assert.NotContains(t, r.Data, core.FieldConflicts)
	assert.Equal(t, []string{"header", "amounts"}, r.Specializations)
	assert.Contains(t, r.RawResponse, "```json")

	require.Len(t, inv.Exchanges, 1)
	assert.True(t, inv.Exchanges[0].HasImage)
	assert.Equal(t, "mock-backend", inv.Exchanges[0].Model)
	assert.Equal(t, 1, inv.Exchanges[0].Iteration)

	req := b.Calls[0].Arguments.Get(1).(model.Request)
	require.Len(t, req.Parts, 2)
	img, ok := req.Parts[0].(core.ImagePart)
	require.True(t, ok, "image must come first")
	assert.Equal(t, []byte("png-1"), img.Data)
	assert.Equal(t, int64(900), req.MaxTokens)
	assert.InDelta(t, 0.1, req.Temperature, 1e-9)

	prompt := core.PromptText(req.Parts)
	assert.True(t, strings.HasPrefix(prompt, "You are a test extractor."))
	assert.Contains(t, prompt, "Respond with JSON only")
	assert.Contains(t, prompt, "TOTAL 121,00")
	assert.NotContains(t, prompt, textOnlyNote)

	b.AssertExpectations(t)
}

func TestInvoke_TextOnlyPrompt(t *testing.T) {
	m := model.NewMockModel("m", "mock")
	m.SetDefault(`{"invoiceNumber":"7","confidence":70}`, nil)

	doc := testutil.NewDocumentBuilder("f.pdf").Text("hello").Build()
	inv := newTestInvoker(m).Invoke(context.Background(), testDescriptor("structural"), Input{Document: doc})

	require.Len(t, m.Calls(), 1)
	parts := m.Calls()[0].Parts
	require.Len(t, parts, 1)
	assert.False(t, core.HasImage(parts))
	assert.Contains(t, core.PromptText(parts), textOnlyNote)
	assert.False(t, inv.Exchanges[0].HasImage)
	assert.Equal(t, 70, inv.Result.Confidence)
}

func TestInvoke_TextBudget(t *testing.T) {
	m := model.NewMockModel("m", "mock")
	m.SetDefault(`{}`, nil)

	doc := testutil.NewDocumentBuilder("f.pdf").Text(strings.Repeat("a", 100) + "OVERFLOW").Build()
	iv := NewInvoker(m, func(o *InvokerOptions) { o.TextBudget = 100 })
	iv.Invoke(context.Background(), testDescriptor("structural"), Input{Document: doc})

	prompt := core.PromptText(m.Calls()[0].Parts)
	assert.Contains(t, prompt, strings.Repeat("a", 100))
	assert.NotContains(t, prompt, "OVERFLOW")
}

func TestInvoke_HeuristicConfidence(t *testing.T) {
	m := model.NewMockModel("m", "mock")
	m.SetDefault(`{"invoiceNumber":"0001-1","totalAmount":5,"currency":"USD"}`, nil)

	inv := newTestInvoker(m).Invoke(context.Background(), testDescriptor("structural"), Input{Document: &core.Document{}})

	// 2/2 critical -> 80, one bonus -> +5
	assert.Equal(t, 85, inv.Result.Confidence)
	assert.False(t, inv.Result.Fallback)
}

func TestInvoke_ParseErrorFallsBack(t *testing.T) {
	m := model.NewMockModel("m", "mock")
	m.SetDefault("Sorry, I cannot help with that.", nil)

	inv := newTestInvoker(m).Invoke(context.Background(), testDescriptor("structural"), Input{Document: &core.Document{}})

	r := inv.Result
	assert.True(t, r.Fallback)
	assert.Equal(t, core.FallbackConfidence, r.Confidence)
	assert.Equal(t, core.CodeAgentParseError, r.ErrorCode)
	require.Len(t, r.Conflicts, 1)
	assert.Contains(t, r.Conflicts[0], string(core.CodeAgentParseError))
	assert.Equal(t, "Sorry, I cannot help with that.", r.RawResponse)
	assert.Empty(t, r.Data)
	// parse errors are not retried
	assert.Equal(t, 1, r.Attempts)
	assert.Len(t, m.Calls(), 1)
}

func TestInvoke_RetriesThenFallsBack(t *testing.T) {
	b := new(testutil.MockBackend)
	b.On("Complete", mock.Anything, mock.Anything).Return(model.Response{}, errors.New("503 overloaded"))

	inv := newTestInvoker(b).Invoke(context.Background(), testDescriptor("structural"), Input{Document: &core.Document{}, Iteration: 2})

	r := inv.Result
	assert.True(t, r.Fallback)
	assert.Equal(t, core.FallbackConfidence, r.Confidence)
	assert.Equal(t, core.CodeAgentBackendError, r.ErrorCode)
	assert.Equal(t, 3, r.Attempts)
	require.Len(t, inv.Exchanges, 3)
	for i, ex := range inv.Exchanges {
		assert.Equal(t, i+1, ex.Attempt)
		assert.Equal(t, "503 overloaded", ex.Error)
	}
	b.AssertNumberOfCalls(t, "Complete", 3)
}

func TestInvoke_RetryRecovers(t *testing.T) {
	b := new(testutil.MockBackend)
	b.On("Complete", mock.Anything, mock.Anything).Return(model.Response{}, errors.New("reset")).Once()
	b.On("Complete", mock.Anything, mock.Anything).Return(testutil.JSON(`{"invoiceNumber":"1","confidence":91}`), nil).Once()

	inv := newTestInvoker(b).Invoke(context.Background(), testDescriptor("structural"), Input{Document: &core.Document{}})

	assert.False(t, inv.Result.Fallback)
	assert.Equal(t, 91, inv.Result.Confidence)
	assert.Equal(t, 2, inv.Result.Attempts)
	assert.Len(t, inv.Exchanges, 2)
}

func TestInvoke_Timeout(t *testing.T) {
	b := new(testutil.MockBackend)
	b.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(model.Response{}, context.DeadlineExceeded)

	desc := testDescriptor("slow")
	desc.Timeout = 20 * time.Millisecond
	desc.MaxRetries = 0

	inv := newTestInvoker(b).Invoke(context.Background(), desc, Input{Document: &core.Document{}})

	assert.True(t, inv.Result.Fallback)
	assert.Equal(t, core.CodeAgentTimeout, inv.Result.ErrorCode)
	assert.Equal(t, 1, inv.Result.Attempts)
}

func TestInvoke_CallLimit(t *testing.T) {
	b := new(testutil.MockBackend)
	b.On("Complete", mock.Anything, mock.Anything).Return(model.Response{}, errors.New("boom"))

	limiter := core.NewCallLimiter(1)
	inv := newTestInvoker(b).Invoke(context.Background(), testDescriptor("structural"), Input{Document: &core.Document{}, Limiter: limiter})

	assert.True(t, inv.Result.Fallback)
	assert.Equal(t, core.CodeCallLimitExceeded, inv.Result.ErrorCode)
	assert.Equal(t, 1, inv.Result.Attempts)
	b.AssertNumberOfCalls(t, "Complete", 1)
}

func TestInvoke_SchemaViolationKeepsData(t *testing.T) {
	m := model.NewMockModel("m", "mock")
	m.SetDefault(`{"invoiceNumber":"1","totalAmount":"twelve","lineItems":"none","confidence":80}`, nil)

	inv := newTestInvoker(m).Invoke(context.Background(), testDescriptor("structural"), Input{Document: &core.Document{}})

	r := inv.Result
	assert.False(t, r.Fallback)
	assert.Equal(t, 80, r.Confidence)
	assert.Equal(t, core.CodeAgentSchemaError, r.ErrorCode)
	assert.Equal(t, "twelve", r.Data[core.FieldTotalAmount])
	require.NotEmpty(t, r.Conflicts)
	joined := strings.Join(r.Conflicts, "\n")
	assert.Contains(t, joined, "schema: totalAmount")
	assert.Contains(t, joined, "schema: lineItems")
}

func TestInvoke_MetadataAgentSkipsBackend(t *testing.T) {
	b := new(testutil.MockBackend)

	desc := core.AgentDescriptor{Name: core.AgentMetadata, Specializations: []string{"filename", "mime"}, Weight: 0.5, Timeout: time.Second}
	doc := testutil.NewDocumentBuilder("Factura_A_0003-00012345.pdf").Build()

	inv := newTestInvoker(b).Invoke(context.Background(), desc, Input{Document: doc})

	assert.Equal(t, MetadataConfidence, inv.Result.Confidence)
	assert.InDelta(t, 0.5, inv.Result.Weight, 1e-9)
	assert.Equal(t, "factura_a", inv.Result.Data[core.FieldDocumentType])
	assert.Empty(t, inv.Exchanges)
	b.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestInvoke_NoBackend(t *testing.T) {
	inv := NewInvoker(nil).Invoke(context.Background(), testDescriptor("structural"), Input{Document: &core.Document{}})

	assert.True(t, inv.Result.Fallback)
	assert.Equal(t, core.CodeBackendNotConfigured, inv.Result.ErrorCode)
}

func TestInvoke_PriorDataAndConflictsInPrompt(t *testing.T) {
	m := model.NewMockModel("m", "mock")
	m.SetDefault(`{"confidence":90}`, nil)

	desc := testDescriptor("conflict_resolution")
	desc.PromptTemplate = "Conflicts:\n- {{join \"\\n- \" .Conflicts}}\nData:\n{{json .PriorData}}"

	newTestInvoker(m).Invoke(context.Background(), desc, Input{
		Document:  &core.Document{},
		PriorData: core.ExtractedData{core.FieldIssuerName: "ACME SA"},
		Conflicts: []string{"structural: total mismatch"},
	})

	prompt := core.PromptText(m.Calls()[0].Parts)
	assert.Contains(t, prompt, "- structural: total mismatch")
	assert.Contains(t, prompt, `"issuerName": "ACME SA"`)
}
