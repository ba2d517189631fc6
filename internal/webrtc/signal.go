package webrtc

import (
	"encoding/json"
	"fmt"

	pion "github.com/pion/webrtc/v4"
)

// Signal payload types.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// Signal is the payload carried in the relay's signal field. It is either a
// session description or one trickled ICE candidate.
type Signal struct {
	Type      string                 `json:"type"`
	SDP       string                 `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

// EncodeDescription encodes an offer or answer.
func EncodeDescription(desc pion.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(Signal{Type: desc.Type.String(), SDP: desc.SDP})
}

// EncodeCandidate encodes one local ICE candidate.
func EncodeCandidate(c pion.ICECandidateInit) (json.RawMessage, error) {
	return json.Marshal(Signal{Type: SignalCandidate, Candidate: &c})
}

// DecodeSignal parses and validates a remote payload.
func DecodeSignal(raw json.RawMessage) (*Signal, error) {
	var s Signal
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, WrapError("decode signal", ErrBadSignal, err.Error())
	}
	switch s.Type {
	case SignalOffer, SignalAnswer:
		if s.SDP == "" {
			return nil, WrapError("decode signal", ErrBadSignal, s.Type+" without sdp")
		}
	case SignalCandidate:
		if s.Candidate == nil {
			return nil, WrapError("decode signal", ErrBadSignal, "candidate missing")
		}
	default:
		return nil, WrapError("decode signal", ErrBadSignal, fmt.Sprintf("unknown type %q", s.Type))
	}
	return &s, nil
}

// Description converts an offer or answer to pion's form.
func (s *Signal) Description() pion.SessionDescription {
	return pion.SessionDescription{Type: pion.NewSDPType(s.Type), SDP: s.SDP}
}
