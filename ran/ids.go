package ran

import "fmt"

const (
	// MaxNofDUUEs is the maximum number of UEs a DU cell can serve.
	MaxNofDUUEs = 1024

	// MaxNofHARQs is the maximum number of HARQ processes per UE and direction.
	MaxNofHARQs = 16

	// MaxNofPDUSessions is the maximum number of PDU sessions of one UE.
	MaxNofPDUSessions = 256

	// MaxNofDRBs is the maximum number of data radio bearers of one UE.
	MaxNofDRBs = 29
)

// UEIndex identifies a UE inside a DU.
type UEIndex uint16

// InvalidUEIndex marks the absence of a UE.
const InvalidUEIndex UEIndex = MaxNofDUUEs

// RNTI is the radio network temporary identifier of a UE.
type RNTI uint16

// HARQID identifies a HARQ process of one UE and one direction.
type HARQID uint8

// PDUSessionID identifies a PDU session of a UE.
type PDUSessionID uint8

// DRBID identifies a data radio bearer of a UE.
type DRBID uint8

// HARQAckStatus is the value decoded from one HARQ-ACK occasion.
type HARQAckStatus uint8

// HARQ-ACK decoding outcomes.
const (
	HARQNack HARQAckStatus = iota
	HARQAck
	HARQDTX
)

func (s HARQAckStatus) String() string {
	switch s {
	case HARQNack:
		return "nack"
	case HARQAck:
		return "ack"
	case HARQDTX:
		return "dtx"
	default:
		return fmt.Sprintf("HARQAckStatus(%d)", uint8(s))
	}
}
