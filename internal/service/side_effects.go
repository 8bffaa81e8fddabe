package service

import (
	"context"

	"github.com/pesio-ai/be-st-sourcing/internal/client"
	"github.com/pesio-ai/be-st-sourcing/internal/logger"
	"github.com/pesio-ai/be-st-sourcing/internal/repository"
	"github.com/pesio-ai/be-st-sourcing/internal/workflow"
)

// HistorySink receives candidate history entries. Implemented by
// repository.CandidateHistoryRepository.
type HistorySink interface {
	Append(ctx context.Context, entry *repository.CandidateHistoryEntry) error
}

// SideEffectDispatcher delivers the side effects queued by the status
// projector. It runs strictly after the owning transaction has committed:
// a collaborator failure is logged and dropped, never propagated, so the
// committed status transition is never lost to a secondary call. Delivery
// is at-least-once; collaborators tolerate duplicates.
type SideEffectDispatcher struct {
	credentialing client.CredentialingClientInterface
	notifier      client.NotifierInterface
	history       HistorySink
	log           *logger.Logger
}

// NewSideEffectDispatcher creates a dispatcher. Nil collaborators disable
// their effect kinds.
func NewSideEffectDispatcher(
	credentialing client.CredentialingClientInterface,
	notifier client.NotifierInterface,
	history HistorySink,
	log *logger.Logger,
) *SideEffectDispatcher {
	return &SideEffectDispatcher{
		credentialing: credentialing,
		notifier:      notifier,
		history:       history,
		log:           log,
	}
}

// Dispatch delivers each effect in order, best-effort.
func (d *SideEffectDispatcher) Dispatch(ctx context.Context, effects []workflow.SideEffect, actor string) {
	for _, effect := range effects {
		if err := d.dispatchOne(ctx, effect, actor); err != nil {
			d.log.Warn().Err(err).
				Str("kind", string(effect.Kind)).
				Str("event_code", effect.EventCode).
				Msg("side effect dispatch failed (non-fatal)")
		}
	}
}

func (d *SideEffectDispatcher) dispatchOne(ctx context.Context, effect workflow.SideEffect, actor string) error {
	switch effect.Kind {
	case workflow.EffectCredentialingPush:
		if d.credentialing == nil {
			return nil
		}
		return d.credentialing.PushWorkflowUpdate(ctx, effect.Payload)

	case workflow.EffectCredentialingAppendSteps:
		if d.credentialing == nil {
			return nil
		}
		return d.credentialing.PushWorkflowUpdateAndAppendSteps(ctx, effect.Payload)

	case workflow.EffectCredentialingTerminate:
		if d.credentialing == nil {
			return nil
		}
		workflowID, _ := effect.Payload["workflow_id"].(string)
		tenantID, _ := effect.Payload["program_id"].(string)
		return d.credentialing.TerminateOnboarding(ctx, workflowID, tenantID, "")

	case workflow.EffectNotification:
		if d.notifier == nil {
			return nil
		}
		d.notifier.SendNotificationsForUserType(ctx, effect.EventCode, effect.Payload)
		return nil

	case workflow.EffectCandidateHistory:
		if d.history == nil {
			return nil
		}
		return d.history.Append(ctx, historyEntryFromEffect(effect, actor))
	}
	return nil
}

func historyEntryFromEffect(effect workflow.SideEffect, actor string) *repository.CandidateHistoryEntry {
	entry := &repository.CandidateHistoryEntry{
		Action:      effect.EventCode,
		PerformedBy: actor,
		Metadata:    effect.Payload,
	}
	if v, ok := effect.Payload["program_id"].(string); ok {
		entry.ProgramID = v
	}
	if v, ok := effect.Payload["candidate_id"].(string); ok {
		entry.CandidateID = v
	}
	if v, ok := effect.Payload["entity_type"].(string); ok {
		entry.EntityType = v
	}
	if v, ok := effect.Payload["entity_id"].(string); ok {
		entry.EntityID = v
	}
	if v, ok := effect.Payload["old_status"].(string); ok {
		entry.OldStatus = &v
	}
	if v, ok := effect.Payload["new_status"].(string); ok {
		entry.NewStatus = &v
	}
	return entry
}
