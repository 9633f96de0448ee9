// Package cucp holds the CU-CP side of PDU session management: the messages
// exchanged with the AMF, the DU and the CU-UP, and the per-UE user-plane
// resource bookkeeping.
package cucp

import (
	"github.com/sarchlab/ranstack/async"
	"github.com/sarchlab/ranstack/ran"
)

// PDUSessionResourceToRelease names one PDU session of a release command.
type PDUSessionResourceToRelease struct {
	PDUSessionID ran.PDUSessionID
}

// PDUSessionResourceReleaseCommand asks the CU-CP to release PDU sessions of
// a UE.
type PDUSessionResourceReleaseCommand struct {
	UE       ran.UEIndex
	Sessions []PDUSessionResourceToRelease
}

// PDUSessionResourceReleasedItem reports one released PDU session.
type PDUSessionResourceReleasedItem struct {
	PDUSessionID ran.PDUSessionID
}

// PDUSessionResourceReleaseResponse is the outcome of a release command.
//
// Released lists every requested session, ordered by ID, even when one of
// the remote steps failed. DUModificationOK and CUUPModificationOK tell the
// caller whether the DU and the CU-UP confirmed their part.
type PDUSessionResourceReleaseResponse struct {
	UE                 ran.UEIndex
	Released           []PDUSessionResourceReleasedItem
	DUModificationOK   bool
	CUUPModificationOK bool
}

// UEContextModificationRequest asks the DU to modify the context of a UE.
type UEContextModificationRequest struct {
	UE               ran.UEIndex
	DRBsToBeReleased []ran.DRBID
}

// UEContextModificationResponse is the answer of the DU.
type UEContextModificationResponse struct {
	Success bool
}

// BearerContextModificationRequest asks the CU-UP to modify the bearer
// context of a UE.
type BearerContextModificationRequest struct {
	UE                  ran.UEIndex
	PDUSessionsToRemove []ran.PDUSessionID
}

// BearerContextModificationResponse is the answer of the CU-UP.
type BearerContextModificationResponse struct {
	Success bool
}

// F1APUEContextNotifier forwards UE context procedures to the DU.
type F1APUEContextNotifier interface {
	OnUEContextModificationRequest(
		req UEContextModificationRequest,
	) *async.Future[UEContextModificationResponse]
}

// E1APControlNotifier forwards bearer context procedures to the CU-UP.
type E1APControlNotifier interface {
	OnBearerContextModificationRequest(
		req BearerContextModificationRequest,
	) *async.Future[BearerContextModificationResponse]
}
