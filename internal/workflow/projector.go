package workflow

import "github.com/pesio-ai/be-st-sourcing/internal/apperrors"

// SideEffectKind names a post-commit collaborator call.
type SideEffectKind string

const (
	EffectCredentialingPush        SideEffectKind = "credentialing_push"
	EffectCredentialingAppendSteps SideEffectKind = "credentialing_append_steps"
	EffectCredentialingTerminate   SideEffectKind = "credentialing_terminate"
	EffectNotification             SideEffectKind = "notification"
	EffectCandidateHistory         SideEffectKind = "candidate_history"
)

// SideEffect is one collaborator call queued by the projector. Effects are
// dispatched by the service layer after the enclosing transaction commits;
// they are best-effort and at-least-once.
type SideEffect struct {
	Kind      SideEffectKind
	EventCode string
	Payload   map[string]any
}

// Projection is the outcome of projecting a workflow result onto the
// trigger entity.
type Projection struct {
	NewStatus string
	// SubmissionStatus mirrors offer transitions onto the linked
	// submission; empty when no mirror applies.
	SubmissionStatus string
	// MergeCounterOffer marks that the parent offer must be closed and
	// superseded by the counter's data inside the same transaction.
	MergeCounterOffer bool
	SideEffects       []SideEffect
}

// statusSet is the status vocabulary for one event.
type statusSet struct {
	released         string
	review           string
	approval         string
	rejected         string
	submissionMirror string
}

var transitions = map[string]statusSet{
	EventCreateOffer: {
		released:         "Pending Acceptance",
		review:           "Pending Review",
		approval:         "Pending Approval",
		rejected:         "Rejected",
		submissionMirror: "Offer Pending Acceptance",
	},
	EventUpdateOffer: {
		released:         "Pending Acceptance",
		review:           "Pending Review",
		approval:         "Pending Approval",
		rejected:         "Rejected",
		submissionMirror: "Offer Pending Acceptance",
	},
	EventCounterOffer: {
		released:         "Pending Acceptance",
		review:           "Pending Review",
		approval:         "Pending Approval",
		rejected:         "Rejected",
		submissionMirror: "Offer Pending Acceptance",
	},
	EventCreateJob: {
		released: "OPEN",
		review:   "PENDING REVIEW",
		approval: "PENDING APPROVAL",
		rejected: "REJECTED",
	},
	EventSubmitCandidate: {
		released: "Submitted",
		review:   "Pending Review",
		approval: "Pending Approval",
		rejected: "Rejected",
	},
}

// OfferClosedStatus is the terminal status of a parent offer superseded by
// an accepted counter offer.
const OfferClosedStatus = "CLOSED"

// Project maps a workflow result onto the trigger entity's next status and
// the side effects to dispatch after commit.
//
// A nil result or nil instance means no config matched: the entity goes
// straight to the event's released status. A pending instance gates the
// entity behind the flow type's intermediate status. A completed instance
// releases the entity, unless the completing decision was a reject, which
// moves it to the rejected status and terminates onboarding for offers.
func Project(res *Result, event string, snap EntitySnapshot) (*Projection, error) {
	ts, ok := transitions[event]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "unknown workflow event %q", event)
	}

	p := &Projection{}

	switch {
	case res == nil || res.Instance == nil:
		p.NewStatus = ts.released
		p.SubmissionStatus = ts.submissionMirror
		p.MergeCounterOffer = event == EventCounterOffer
		p.addReleaseEffects(event, snap, nil)

	case res.Status == InstancePending:
		if res.Instance.FlowType == FlowReview {
			p.NewStatus = ts.review
		} else {
			p.NewStatus = ts.approval
		}
		if snap.Type == EntityOffer {
			p.SideEffects = append(p.SideEffects, SideEffect{
				Kind:      EffectCredentialingPush,
				EventCode: event,
				Payload:   basePayload(res.Instance, snap),
			})
		}

	case res.Decision == DecisionReject:
		p.NewStatus = ts.rejected
		if snap.Type == EntityOffer {
			p.SideEffects = append(p.SideEffects, SideEffect{
				Kind:      EffectCredentialingTerminate,
				EventCode: event,
				Payload:   basePayload(res.Instance, snap),
			})
		}
		p.SideEffects = append(p.SideEffects, SideEffect{
			Kind:      EffectNotification,
			EventCode: string(snap.Type) + "_rejected",
			Payload:   basePayload(res.Instance, snap),
		})

	default: // completed
		p.NewStatus = ts.released
		p.SubmissionStatus = ts.submissionMirror
		p.MergeCounterOffer = event == EventCounterOffer
		p.addReleaseEffects(event, snap, res.Instance)
	}

	history := map[string]any{
		"program_id":  snap.ProgramID,
		"entity_type": string(snap.Type),
		"entity_id":   snap.ID,
		"old_status":  snap.Status,
		"new_status":  p.NewStatus,
	}
	if snap.CandidateID != "" {
		history["candidate_id"] = snap.CandidateID
	}
	p.SideEffects = append(p.SideEffects, SideEffect{
		Kind:      EffectCandidateHistory,
		EventCode: event,
		Payload:   history,
	})

	return p, nil
}

// addReleaseEffects queues the collaborator calls fired when an entity
// reaches its released status, with or without a completed workflow.
func (p *Projection) addReleaseEffects(event string, snap EntitySnapshot, inst *Instance) {
	payload := basePayload(inst, snap)
	if snap.Type == EntityOffer {
		kind := EffectCredentialingPush
		if inst != nil {
			// Completion appends the resolved workflow steps to the
			// onboarding record.
			kind = EffectCredentialingAppendSteps
		}
		p.SideEffects = append(p.SideEffects, SideEffect{
			Kind:      kind,
			EventCode: event,
			Payload:   payload,
		})
	}
	p.SideEffects = append(p.SideEffects, SideEffect{
		Kind:      EffectNotification,
		EventCode: event + "_released",
		Payload:   payload,
	})
}

func basePayload(inst *Instance, snap EntitySnapshot) map[string]any {
	payload := map[string]any{
		"program_id":  snap.ProgramID,
		"entity_type": string(snap.Type),
		"entity_id":   snap.ID,
	}
	if snap.CandidateID != "" {
		payload["candidate_id"] = snap.CandidateID
	}
	if snap.JobID != "" {
		payload["job_id"] = snap.JobID
	}
	if inst != nil {
		payload["workflow_id"] = inst.ID
		payload["flow_type"] = string(inst.FlowType)
	}
	return payload
}
