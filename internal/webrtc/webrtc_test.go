package webrtc

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	pion "github.com/pion/webrtc/v4"

	"github.com/keiu-jiyu/VideoChat/internal/config"
	"github.com/keiu-jiyu/VideoChat/internal/peer"
	"github.com/keiu-jiyu/VideoChat/internal/room"
)

func TestDecodeSignal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "offer", raw: `{"type":"offer","sdp":"v=0"}`, want: SignalOffer},
		{name: "answer", raw: `{"type":"answer","sdp":"v=0"}`, want: SignalAnswer},
		{name: "candidate", raw: `{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 1 192.0.2.1 5000 typ host"}}`, want: SignalCandidate},
		{name: "offer without sdp", raw: `{"type":"offer"}`, wantErr: true},
		{name: "candidate without body", raw: `{"type":"candidate"}`, wantErr: true},
		{name: "unknown", raw: `{"type":"renegotiate"}`, wantErr: true},
		{name: "not json", raw: `offer`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := DecodeSignal(json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrBadSignal) {
					t.Fatalf("err=%v, want ErrBadSignal", err)
				}
				return
			}
			if err != nil || sig.Type != tt.want {
				t.Fatalf("sig=%+v err=%v", sig, err)
			}
		})
	}
}

func TestEncodeSignals(t *testing.T) {
	raw, err := EncodeDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "v=0"})
	if err != nil {
		t.Fatal(err)
	}
	sig, err := DecodeSignal(raw)
	if err != nil || sig.Description().Type != pion.SDPTypeAnswer || sig.SDP != "v=0" {
		t.Fatalf("answer decoded as %+v, %v", sig, err)
	}

	mid := "0"
	raw, err = EncodeCandidate(pion.ICECandidateInit{Candidate: "candidate:1 1 udp 1 192.0.2.1 5000 typ host", SDPMid: &mid})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"type":"candidate"`) || !strings.Contains(string(raw), `"sdpMid":"0"`) {
		t.Fatalf("candidate payload=%s", raw)
	}
}

func TestControlMessages(t *testing.T) {
	data, err := EncodeMediaState(peer.MediaState{Video: false, Audio: true})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := ParseMessage(data)
	if err != nil || msg.Type != MessageTypeMediaState {
		t.Fatalf("msg=%+v err=%v", msg, err)
	}
	state, err := DecodeMediaState(msg)
	if err != nil || state != (peer.MediaState{Video: false, Audio: true}) {
		t.Fatalf("state=%+v err=%v", state, err)
	}

	if _, err := ParseMessage([]byte{0xc1}); !errors.Is(err, ErrBadSignal) {
		t.Fatalf("garbage parsed: %v", err)
	}
}

func TestCandidateQueue(t *testing.T) {
	var q candidateQueue
	a := pion.ICECandidateInit{Candidate: "a"}
	b := pion.ICECandidateInit{Candidate: "b"}

	if !q.push(a) || !q.push(b) {
		t.Fatalf("candidates applied before remote description")
	}
	got := q.release()
	if len(got) != 2 || got[0].Candidate != "a" || got[1].Candidate != "b" {
		t.Fatalf("released %+v", got)
	}
	if q.push(pion.ICECandidateInit{Candidate: "c"}) {
		t.Fatalf("candidate queued after remote description")
	}
	if len(q.release()) != 0 {
		t.Fatalf("second release returned candidates")
	}
}

func TestOutboxHoldsUntilFlush(t *testing.T) {
	var o outbox
	if !o.hold([]byte("c1")) {
		t.Fatalf("not held before flush")
	}
	if held := o.flush(); len(held) != 1 || string(held[0]) != "c1" {
		t.Fatalf("flushed %q", held)
	}
	if o.hold([]byte("c2")) {
		t.Fatalf("held after flush")
	}
}

func TestConfiguration(t *testing.T) {
	cfg := &config.Config{}
	c := Configuration(cfg, true)
	if len(c.ICEServers) != 1 || len(c.ICEServers[0].URLs) != 2 {
		t.Fatalf("ICE servers=%+v", c.ICEServers)
	}
	if c.ICETransportPolicy != pion.ICETransportPolicyAll {
		t.Fatalf("relay-only without TURN")
	}

	cfg = &config.Config{TURNServer: "turn.example.com", TURNUser: "u", TURNPass: "p"}
	c = Configuration(cfg, false)
	if len(c.ICEServers) != 2 || c.ICEServers[1].Username != "u" || c.ICEServers[1].Credential != "p" {
		t.Fatalf("ICE servers=%+v", c.ICEServers)
	}
	if c.ICETransportPolicy != pion.ICETransportPolicyAll {
		t.Fatalf("relay-only without request")
	}
	if Configuration(cfg, true).ICETransportPolicy != pion.ICETransportPolicyRelay {
		t.Fatalf("tunneled network did not force relay")
	}
	cfg.ForceRelay = true
	if Configuration(cfg, false).ICETransportPolicy != pion.ICETransportPolicyRelay {
		t.Fatalf("ForceRelay ignored")
	}
}

// recorder collects transport events.
type recorder struct {
	mu      sync.Mutex
	signals []json.RawMessage
	failed  []error
}

func (r *recorder) events() peer.TransportEvents {
	return peer.TransportEvents{
		OnSignal: func(p json.RawMessage) {
			r.mu.Lock()
			r.signals = append(r.signals, p)
			r.mu.Unlock()
		},
		OnConnected:  func() {},
		OnFailed:     func(err error) { r.mu.Lock(); r.failed = append(r.failed, err); r.mu.Unlock() },
		OnMediaState: func(peer.MediaState) {},
	}
}

func (r *recorder) first(t *testing.T) *Signal {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.signals) == 0 {
		t.Fatalf("nothing emitted")
	}
	sig, err := DecodeSignal(r.signals[0])
	if err != nil {
		t.Fatalf("first payload: %v", err)
	}
	return sig
}

func newTestTransport(t *testing.T, f *Factory, id string, role peer.Role) (*Transport, *recorder) {
	t.Helper()
	rec := &recorder{}
	tr, err := f.NewTransport(room.Member{ID: id, Name: id}, role, rec.events())
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr.(*Transport), rec
}

func TestOfferAnswerExchange(t *testing.T) {
	f, err := NewFactory(&config.Config{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	initiator, irec := newTestTransport(t, f, "b", peer.Initiator)
	responder, rrec := newTestTransport(t, f, "a", peer.Responder)

	// A candidate that beats the offer is queued, not rejected.
	early := json.RawMessage(`{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host","sdpMid":"0","sdpMLineIndex":0}}`)
	if err := responder.Signal(early); err != nil {
		t.Fatalf("early candidate: %v", err)
	}

	if err := initiator.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	offer := irec.first(t)
	if offer.Type != SignalOffer || !strings.Contains(offer.SDP, "m=application") {
		t.Fatalf("first payload %+v, want offer with data channel", offer)
	}

	if err := responder.Start(); err != nil {
		t.Fatalf("responder Start: %v", err)
	}
	irec.mu.Lock()
	offerRaw := irec.signals[0]
	irec.mu.Unlock()
	if err := responder.Signal(offerRaw); err != nil {
		t.Fatalf("apply offer: %v", err)
	}
	answer := rrec.first(t)
	if answer.Type != SignalAnswer {
		t.Fatalf("responder emitted %s first", answer.Type)
	}

	rrec.mu.Lock()
	answerRaw := rrec.signals[0]
	rrec.mu.Unlock()
	if err := initiator.Signal(answerRaw); err != nil {
		t.Fatalf("apply answer: %v", err)
	}
	if len(irec.failed)+len(rrec.failed) != 0 {
		t.Fatalf("failures: %v %v", irec.failed, rrec.failed)
	}
}

func TestRoleMismatchAndBadSDP(t *testing.T) {
	f, err := NewFactory(&config.Config{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	initiator, irec := newTestTransport(t, f, "b", peer.Initiator)
	responder, rrec := newTestTransport(t, f, "a", peer.Responder)

	if err := initiator.Signal(json.RawMessage(`{"type":"offer","sdp":"v=0"}`)); !errors.Is(err, ErrUnexpectedSignal) {
		t.Fatalf("offer to initiator: %v", err)
	}
	if err := responder.Signal(json.RawMessage(`{"type":"answer","sdp":"v=0"}`)); !errors.Is(err, ErrUnexpectedSignal) {
		t.Fatalf("answer to responder: %v", err)
	}
	if len(irec.failed)+len(rrec.failed) != 0 {
		t.Fatalf("role mismatch failed the session")
	}

	if err := responder.Signal(json.RawMessage(`{"type":"offer","sdp":"garbage"}`)); err == nil {
		t.Fatalf("garbage offer accepted")
	}
	if len(rrec.failed) != 1 {
		t.Fatalf("garbage offer did not fail the transport")
	}

	if err := responder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := responder.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := responder.Signal(json.RawMessage(`{"type":"offer","sdp":"v=0"}`)); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("signal after close: %v", err)
	}
	if err := responder.SendMediaState(peer.MediaState{}); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("media state after close: %v", err)
	}
}
