package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/convo/workflow/workflowinfra"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	queue      *workflowinfra.MemoryQueuePublisher
	records    *workflowinfra.MemoryActionRecordRepository
	dispatcher *Dispatcher
}

func newFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		queue:   workflowinfra.NewMemoryQueuePublisher(),
		records: workflowinfra.NewMemoryActionRecordRepository(),
	}
	f.dispatcher = NewDispatcher(f.queue, NewWebhookClient(2*time.Second), f.records)
	return f
}

func actionRequest(action string, params map[string]any) workflow.ActionRequest {
	return workflow.ActionRequest{
		TenantID:    kernel.TenantID("tenant-1"),
		WorkflowID:  kernel.WorkflowID("wf-1"),
		ExecutionID: kernel.NewExecutionID("exec-1"),
		Action:      action,
		Params:      params,
	}
}

func TestDispatchSendEmail(t *testing.T) {
	f := newFixture()

	err := f.dispatcher.Dispatch(context.Background(), actionRequest("send_email", map[string]any{
		"to":      "ana@example.com",
		"subject": "Welcome",
		"message": "Hi Ana",
	}))
	require.NoError(t, err)

	require.Len(t, f.queue.Messages, 1)
	msg := f.queue.Messages[0]
	require.Equal(t, workflow.OutboundKindEmail, msg.Kind)
	require.Equal(t, "ana@example.com", msg.To)
	require.Equal(t, "Welcome", msg.Subject)
	require.Equal(t, "Hi Ana", msg.Message)
}

func TestDispatchSendSMSRequiresTo(t *testing.T) {
	f := newFixture()

	err := f.dispatcher.Dispatch(context.Background(), actionRequest("send_sms", map[string]any{
		"message": "no recipient",
	}))
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeValidation))
	require.Empty(t, f.queue.Messages)
}

func TestDispatchWebhook(t *testing.T) {
	var gotMethod, gotHeader string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newFixture()
	err := f.dispatcher.Dispatch(context.Background(), actionRequest("webhook", map[string]any{
		"url":     server.URL,
		"method":  "PUT",
		"headers": map[string]any{"X-Api-Key": "secret"},
		"payload": map[string]any{"order_id": "42"},
	}))
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "secret", gotHeader)
	require.Equal(t, map[string]any{"order_id": "42"}, gotBody)
}

func TestDispatchWebhookDefaultsToPost(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
	}))
	defer server.Close()

	f := newFixture()
	err := f.dispatcher.Dispatch(context.Background(), actionRequest("webhook", map[string]any{
		"url": server.URL,
	}))
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, gotMethod)
}

func TestDispatchWebhookNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := newFixture()
	err := f.dispatcher.Dispatch(context.Background(), actionRequest("webhook", map[string]any{
		"url": server.URL,
	}))
	require.Error(t, err)
}

func TestDispatchWebhookRequiresURL(t *testing.T) {
	f := newFixture()
	err := f.dispatcher.Dispatch(context.Background(), actionRequest("webhook", map[string]any{}))
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeValidation))
}

func TestDispatchSaveToDatabase(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	err := f.dispatcher.Dispatch(ctx, actionRequest("save_to_database", map[string]any{
		"data": map[string]any{"plan": "pro", "seats": "5"},
	}))
	require.NoError(t, err)

	records, err := f.records.FindByExecution(ctx, kernel.NewExecutionID("exec-1"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "save_to_database", records[0].ActionName)
	require.Equal(t, "pro", records[0].Data["plan"])
}

func TestDispatchSaveToDatabaseWholeParams(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// Without a data param the full params map is the record payload.
	err := f.dispatcher.Dispatch(ctx, actionRequest("save_to_database", map[string]any{
		"plan": "free",
	}))
	require.NoError(t, err)

	records, err := f.records.FindByExecution(ctx, kernel.NewExecutionID("exec-1"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "free", records[0].Data["plan"])
}

func TestDispatchLog(t *testing.T) {
	f := newFixture()
	err := f.dispatcher.Dispatch(context.Background(), actionRequest("log", map[string]any{
		"level":   "warn",
		"message": "stock low",
	}))
	require.NoError(t, err)
}

func TestDispatchUnknownAction(t *testing.T) {
	f := newFixture()
	err := f.dispatcher.Dispatch(context.Background(), actionRequest("launch_rocket", nil))
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeValidation))
}
