// Package routines implements the multi-step CU-CP procedures.
package routines

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	"github.com/sarchlab/ranstack/async"
	"github.com/sarchlab/ranstack/cucp"
	"github.com/sarchlab/ranstack/ran"
	"github.com/sarchlab/ranstack/sim/hooking"
	"github.com/sarchlab/ranstack/sim/id"
	"github.com/sarchlab/ranstack/tracing"
)

// Steps reported to the tracers.
const (
	StepDUUEContextModification       = "du_ue_context_modification"
	StepCUUPBearerContextModification = "cu_up_bearer_context_modification"
)

const pduSessionResourceReleaseName = "PDU Session Resource Release Routine"

var (
	errDUModificationFailed   = errors.New("failed to modify UE context at DU")
	errCUUPModificationFailed = errors.New("failed to release bearer at CU-UP")
)

type releaseState int

const (
	releaseIdle releaseState = iota
	releaseAwaitingDU
	releaseAwaitingCUUP
	releaseDone
)

func (s releaseState) String() string {
	switch s {
	case releaseIdle:
		return "idle"
	case releaseAwaitingDU:
		return "awaiting_du"
	case releaseAwaitingCUUP:
		return "awaiting_cu_up"
	default:
		return "done"
	}
}

// PDUSessionResourceReleaseRoutine releases the resources of PDU sessions at
// the DU and at the CU-UP, one after the other.
//
// The routine suspends twice, once per remote peer. Each answer resumes the
// routine on its executor. A failure at one peer is logged and does not stop
// the routine; the response lists every requested session as released and
// reports the outcome of each peer separately.
type PDUSessionResourceReleaseRoutine struct {
	*hooking.HookableBase

	cmd    cucp.PDUSessionResourceReleaseCommand
	e1     cucp.E1APControlNotifier
	f1     cucp.F1APUEContextNotifier
	up     cucp.UPResourceManager
	exec   async.Executor
	logger logr.Logger

	taskID  string
	state   releaseState
	promise *async.Promise[cucp.PDUSessionResourceReleaseResponse]

	ueContextModRequest     cucp.UEContextModificationRequest
	bearerContextModRequest cucp.BearerContextModificationRequest
	response                cucp.PDUSessionResourceReleaseResponse
}

// NewPDUSessionResourceReleaseRoutine creates a routine for one release
// command. The continuations of the routine run on exec.
func NewPDUSessionResourceReleaseRoutine(
	cmd cucp.PDUSessionResourceReleaseCommand,
	e1 cucp.E1APControlNotifier,
	f1 cucp.F1APUEContextNotifier,
	up cucp.UPResourceManager,
	exec async.Executor,
	logger logr.Logger,
) *PDUSessionResourceReleaseRoutine {
	if exec == nil {
		exec = async.InlineExecutor{}
	}

	return &PDUSessionResourceReleaseRoutine{
		HookableBase: hooking.NewHookableBase(),
		cmd:          cmd,
		e1:           e1,
		f1:           f1,
		up:           up,
		exec:         exec,
		logger:       logger,
	}
}

// Name returns the name of the routine.
func (r *PDUSessionResourceReleaseRoutine) Name() string {
	return pduSessionResourceReleaseName
}

// Launch starts the routine. The returned future is set when both peers have
// answered. A routine can only be launched once.
func (r *PDUSessionResourceReleaseRoutine) Launch() *async.Future[cucp.PDUSessionResourceReleaseResponse] {
	if r.state != releaseIdle {
		panic(fmt.Sprintf("%s launched twice", r.Name()))
	}

	p, f := async.NewPromise[cucp.PDUSessionResourceReleaseResponse]()
	r.promise = p
	r.taskID = id.Generate()
	r.response = cucp.PDUSessionResourceReleaseResponse{UE: r.cmd.UE}

	r.logger.V(1).Info("Routine initialized", "ue", r.cmd.UE, "routine", r.Name())
	tracing.StartTask(r.taskID, "", r, "cu_cp_routine", r.Name(), r.cmd)

	r.releaseAtDU()

	return f
}

func (r *PDUSessionResourceReleaseRoutine) releaseAtDU() {
	r.state = releaseAwaitingDU

	r.ueContextModRequest = cucp.UEContextModificationRequest{UE: r.cmd.UE}
	for _, s := range r.cmd.Sessions {
		ctx, err := r.up.GetPDUSessionContext(s.PDUSessionID)
		if err != nil {
			r.logger.Error(err, "Skipping DRBs of PDU session",
				"ue", r.cmd.UE, "pdu_session", s.PDUSessionID)
			continue
		}

		for _, drb := range ctx.DRBs {
			r.ueContextModRequest.DRBsToBeReleased = append(
				r.ueContextModRequest.DRBsToBeReleased, drb.ID)
		}
	}

	r.f1.OnUEContextModificationRequest(r.ueContextModRequest).
		Then(r.exec, r.handleUEContextModificationResponse)
}

func (r *PDUSessionResourceReleaseRoutine) handleUEContextModificationResponse(
	rsp cucp.UEContextModificationResponse,
) {
	r.mustBeIn(releaseAwaitingDU)

	r.response.DUModificationOK = rsp.Success
	if !rsp.Success {
		r.logger.Error(errDUModificationFailed, "Routine step failed",
			"ue", r.cmd.UE, "routine", r.Name())
	}
	tracing.AddTaskStepWithDetail(r.taskID, r,
		StepDUUEContextModification, outcome(rsp.Success))

	r.releaseAtCUUP()
}

func (r *PDUSessionResourceReleaseRoutine) releaseAtCUUP() {
	r.state = releaseAwaitingCUUP

	r.bearerContextModRequest = cucp.BearerContextModificationRequest{
		UE:                  r.cmd.UE,
		PDUSessionsToRemove: r.requestedSessions(),
	}

	r.e1.OnBearerContextModificationRequest(r.bearerContextModRequest).
		Then(r.exec, r.handleBearerContextModificationResponse)
}

func (r *PDUSessionResourceReleaseRoutine) handleBearerContextModificationResponse(
	rsp cucp.BearerContextModificationResponse,
) {
	r.mustBeIn(releaseAwaitingCUUP)

	r.response.CUUPModificationOK = rsp.Success
	if !rsp.Success {
		r.logger.Error(errCUUPModificationFailed, "Routine step failed",
			"ue", r.cmd.UE, "routine", r.Name())
	}
	tracing.AddTaskStepWithDetail(r.taskID, r,
		StepCUUPBearerContextModification, outcome(rsp.Success))

	r.finish()
}

func (r *PDUSessionResourceReleaseRoutine) finish() {
	r.state = releaseDone

	for _, sessionID := range r.requestedSessions() {
		r.response.Released = append(r.response.Released,
			cucp.PDUSessionResourceReleasedItem{PDUSessionID: sessionID})
	}

	r.logger.V(1).Info("Routine finished", "ue", r.cmd.UE, "routine", r.Name(),
		"du_ok", r.response.DUModificationOK,
		"cu_up_ok", r.response.CUUPModificationOK)
	tracing.EndTask(r.taskID, r)

	r.promise.Set(r.response)
}

// requestedSessions returns the IDs named by the command, once each, in
// increasing order.
func (r *PDUSessionResourceReleaseRoutine) requestedSessions() []ran.PDUSessionID {
	seen := make(map[ran.PDUSessionID]bool, len(r.cmd.Sessions))
	ids := make([]ran.PDUSessionID, 0, len(r.cmd.Sessions))

	for _, s := range r.cmd.Sessions {
		if seen[s.PDUSessionID] {
			continue
		}

		seen[s.PDUSessionID] = true
		ids = append(ids, s.PDUSessionID)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func (r *PDUSessionResourceReleaseRoutine) mustBeIn(s releaseState) {
	if r.state != s {
		panic(fmt.Sprintf("%s: response in state %s, expected %s",
			r.Name(), r.state, s))
	}
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}

	return "failed"
}
