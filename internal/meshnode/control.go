package meshnode

import (
	"encoding/json"

	"rubin.dev/mesh/internal/fragment"
	"rubin.dev/mesh/internal/meshtransport"
	"rubin.dev/mesh/internal/routing"
)

// Radio frames carry one of two shapes. A data fragment (fragment.Encode's
// fixed binary layout) and a control message share the same LoRa channel, so
// every frame this node transmits is prefixed with a 1-byte tag identifying
// which. spec.md §6 only specifies the fragment header in binary and allows
// "JSON or equivalent canonical bytes" for retransmission requests and acks;
// this tag is the minimal addition needed to demultiplex the two on receipt.
const (
	frameTagFragment byte = 0x00
	frameTagControl  byte = 0x01
)

// controlKind names which field of controlEnvelope is populated.
type controlKind string

const (
	controlRouteRequest          controlKind = "route_request"
	controlRouteReply            controlKind = "route_reply"
	controlRouteError            controlKind = "route_error"
	controlHello                 controlKind = "hello"
	controlAck                   controlKind = "ack"
	controlNack                  controlKind = "nack"
	controlRetransmissionRequest controlKind = "retransmission_request"
)

// controlEnvelope is the canonical JSON wrapper for every control-plane
// message type the mesh exchanges outside of fragment/ack framing. Exactly
// one payload field is populated, selected by Kind.
type controlEnvelope struct {
	Kind  controlKind
	From  string
	Reply *routing.RouteReply             `json:",omitempty"`
	Req   *routing.RouteRequest           `json:",omitempty"`
	Err   *routing.RouteError             `json:",omitempty"`
	Hello *routing.HelloBeacon            `json:",omitempty"`
	Ack   *fragment.Ack                   `json:",omitempty"`
	Nack  *fragment.Nack                  `json:",omitempty"`
	Retx  *fragment.RetransmissionRequest `json:",omitempty"`
}

// encodeControlFrame marshals env and prepends the control frame tag.
func encodeControlFrame(env controlEnvelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, meshtransport.New(meshtransport.ConfigInvalid, "meshnode.encodeControlFrame", err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, frameTagControl)
	out = append(out, body...)
	return out, nil
}

// decodeControlFrame reverses encodeControlFrame. frame must already have
// had its leading tag byte stripped by the caller.
func decodeControlFrame(body []byte) (controlEnvelope, error) {
	var env controlEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return controlEnvelope{}, meshtransport.New(meshtransport.InvalidFragment, "meshnode.decodeControlFrame", err)
	}
	return env, nil
}

func (n *Node) transmitControl(env controlEnvelope) error {
	env.From = n.selfID
	frame, err := encodeControlFrame(env)
	if err != nil {
		return err
	}
	return n.radio.Transmit(frame)
}
