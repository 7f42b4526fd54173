package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alfredjeanlab/kmeta/internal/model"
)

// OnFailure values for command hooks.
const (
	OnFailureBlock  = "block"
	OnFailureWarn   = "warn"
	OnFailureIgnore = "ignore"
)

// CommandHook runs a shell command for matching notifications. A non-zero
// exit is handled according to OnFailure.
type CommandHook struct {
	Event     string
	Subject   string
	Command   string
	Timeout   int
	OnFailure string
	Dir       string
}

// Validate checks the hook before it is registered.
func (h CommandHook) Validate() error {
	if h.Command == "" {
		return fmt.Errorf("%w: hook command is required", model.ErrInvalidArgument)
	}
	if h.Event != Wildcard && !model.EventKind(h.Event).IsValid() {
		return fmt.Errorf("%w: hook event %q", model.ErrInvalidArgument, h.Event)
	}
	switch h.OnFailure {
	case "", OnFailureBlock, OnFailureWarn, OnFailureIgnore:
	default:
		return fmt.Errorf("%w: hook on_failure %q", model.ErrInvalidArgument, h.OnFailure)
	}
	return nil
}

// RegisterCommand validates h and registers it. Empty Event and Subject
// default to Wildcard.
func (d *Dispatcher) RegisterCommand(h CommandHook) error {
	if h.Event == "" {
		h.Event = Wildcard
	}
	if h.Subject == "" {
		h.Subject = Wildcard
	}
	if err := h.Validate(); err != nil {
		return err
	}
	d.Register(h.Event, h.Subject, func(ctx context.Context, n model.Notification) Response {
		return h.run(ctx, n)
	})
	return nil
}

func (h CommandHook) run(ctx context.Context, n model.Notification) Response {
	var resp Response
	result := Execute(ctx, h.Command, h.Timeout, h.Dir, notificationEnv(n))
	if result.Err == nil {
		return resp
	}
	switch h.OnFailure {
	case OnFailureBlock:
		resp.Block = true
		resp.Reason = fmt.Sprintf("hook %q failed: %v: %s", h.Command, result.Err, result.Output)
	case OnFailureWarn:
		resp.Warnings = append(resp.Warnings,
			fmt.Sprintf("hook %q failed: %v: %s", h.Command, result.Err, result.Output))
	}
	return resp
}

// notificationEnv exposes a notification to command hooks as KMETA_*
// variables plus the full JSON payload.
func notificationEnv(n model.Notification) map[string]string {
	env := map[string]string{
		"KMETA_EVENT":   string(n.Kind),
		"KMETA_SUBJECT": n.Subject,
	}
	if md := n.Metadata; md != nil {
		env["KMETA_METADATA_ID"] = strconv.FormatInt(md.ID, 10)
		env["KMETA_ENTITY_GUID"] = strconv.FormatInt(md.EntityGUID, 10)
		env["KMETA_NAME"] = md.Name
		env["KMETA_VALUE"] = md.Value
		env["KMETA_VALUE_TYPE"] = string(md.ValueType)
		env["KMETA_OWNER_GUID"] = strconv.FormatInt(md.OwnerGUID, 10)
		env["KMETA_ACCESS_ID"] = strconv.Itoa(md.AccessID)
	}
	if e := n.Entity; e != nil {
		env["KMETA_ENTITY_GUID"] = strconv.FormatInt(e.GUID, 10)
		env["KMETA_ENTITY_TYPE"] = e.Type
		env["KMETA_ENTITY_SUBTYPE"] = e.Subtype
		env["KMETA_ACCESS_ID"] = strconv.Itoa(e.AccessID)
	}
	if payload, err := json.Marshal(n); err == nil {
		env["KMETA_PAYLOAD"] = string(payload)
	}
	return env
}
