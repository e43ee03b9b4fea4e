package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/google/uuid"
)

// Dispatcher routes named actions to their side-effect channel:
// send_email and send_sms are published to the durable outbound queue
// (fire-and-forget, delivery is the consumer's problem), webhook and
// save_to_database run synchronously with bounded cost, log is local.
type Dispatcher struct {
	publisher     workflow.QueuePublisher
	webhookClient *WebhookClient
	records       workflow.ActionRecordRepository
}

var _ workflow.ActionDispatcher = (*Dispatcher)(nil)

func NewDispatcher(
	publisher workflow.QueuePublisher,
	webhookClient *WebhookClient,
	records workflow.ActionRecordRepository,
) *Dispatcher {
	return &Dispatcher{
		publisher:     publisher,
		webhookClient: webhookClient,
		records:       records,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req workflow.ActionRequest) error {
	log.Printf("📤 Dispatching action %q for execution %s", req.Action, req.ExecutionID)

	switch req.Action {
	case "send_email":
		return d.publishOutbound(ctx, workflow.OutboundKindEmail, req)
	case "send_sms":
		return d.publishOutbound(ctx, workflow.OutboundKindSMS, req)
	case "webhook":
		return d.callWebhook(ctx, req)
	case "save_to_database":
		return d.saveRecord(ctx, req)
	case "log":
		return d.logAction(req)
	default:
		return workflow.ErrUnknownAction().
			WithDetail("action", req.Action).
			WithDetail("execution_id", req.ExecutionID.String())
	}
}

// publishOutbound enqueues an email/SMS message. Success means "accepted by
// the queue", nothing more.
func (d *Dispatcher) publishOutbound(ctx context.Context, kind workflow.OutboundKind, req workflow.ActionRequest) error {
	to := stringParam(req.Params, "to")
	if to == "" {
		return errx.New("outbound action requires a to param", errx.TypeValidation).
			WithDetail("action", req.Action)
	}

	msg := workflow.OutboundMessage{
		Kind:       kind,
		To:         to,
		Subject:    stringParam(req.Params, "subject"),
		Message:    stringParam(req.Params, "message"),
		TemplateID: stringParam(req.Params, "template_id"),
		Variables:  mapParam(req.Params, "variables"),
	}

	if err := d.publisher.Publish(ctx, msg); err != nil {
		return errx.Wrap(err, "failed to enqueue outbound message", errx.TypeInternal).
			WithDetail("kind", string(kind))
	}

	log.Printf("✉️  Queued %s to %s (execution %s)", kind, to, req.ExecutionID)
	return nil
}

func (d *Dispatcher) callWebhook(ctx context.Context, req workflow.ActionRequest) error {
	url := stringParam(req.Params, "url")
	method := stringParam(req.Params, "method")

	headers := make(map[string]string)
	for k, v := range mapParam(req.Params, "headers") {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	payload := mapParam(req.Params, "payload")
	if payload == nil {
		payload = mapParam(req.Params, "body")
	}

	return d.webhookClient.Call(ctx, url, method, headers, payload)
}

func (d *Dispatcher) saveRecord(ctx context.Context, req workflow.ActionRequest) error {
	data := mapParam(req.Params, "data")
	if data == nil {
		data = req.Params
	}

	record := workflow.ActionRecord{
		ID:          kernel.NewActionRecordID(uuid.New().String()),
		TenantID:    req.TenantID,
		WorkflowID:  req.WorkflowID,
		ExecutionID: req.ExecutionID,
		ActionName:  req.Action,
		Data:        data,
		CreatedAt:   time.Now(),
	}

	if err := d.records.Append(ctx, record); err != nil {
		return errx.Wrap(err, "failed to append action record", errx.TypeInternal)
	}

	log.Printf("💾 Saved action record %s (execution %s)", record.ID, req.ExecutionID)
	return nil
}

func (d *Dispatcher) logAction(req workflow.ActionRequest) error {
	level := stringParam(req.Params, "level")
	if level == "" {
		level = "info"
	}
	message := stringParam(req.Params, "message")
	if message == "" {
		message = fmt.Sprintf("%v", req.Params)
	}

	log.Printf("📝 [%s] workflow %s execution %s: %s", level, req.WorkflowID, req.ExecutionID, message)
	return nil
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}

func mapParam(params map[string]any, key string) map[string]any {
	if params == nil {
		return nil
	}
	if m, ok := params[key].(map[string]any); ok {
		return m
	}
	return nil
}
