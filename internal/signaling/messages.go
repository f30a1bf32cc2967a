package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

type MessageType string

// Client -> relay.
const (
	MessageTypeCreateSession MessageType = "create-session"
	MessageTypeJoinSession   MessageType = "join-session"
	MessageTypeOffer         MessageType = "offer"
	MessageTypeAnswer        MessageType = "answer"
	MessageTypeICECandidate  MessageType = "ice-candidate"
	MessageTypeEndSession    MessageType = "end-session"
	MessageTypeLeaveSession  MessageType = "leave-session"
)

// Relay -> client.
const (
	MessageTypeSessionCreated       MessageType = "session-created"
	MessageTypeSessionNotFound      MessageType = "session-not-found"
	MessageTypeViewerJoined         MessageType = "viewer-joined"
	MessageTypeViewerLeft           MessageType = "viewer-left"
	MessageTypeCreateOfferForViewer MessageType = "create-offer-for-viewer"
	MessageTypeSessionEnded         MessageType = "session-ended"
	MessageTypeError                MessageType = "error"
)

// HostSender is the fixed `from` marker on offers forwarded to viewers.
const HostSender = "host"

// SDP is the JSON-friendly session description carried in offer/answer
// messages. The relay forwards it opaquely.
type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func SDPFromPion(desc webrtc.SessionDescription) SDP {
	return SDP{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (s SDP) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

// Candidate is the JSON-friendly ICE candidate carried in ice-candidate
// messages.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// Message is the wire envelope for every signaling frame, inbound and
// outbound. Which fields are meaningful depends on Type.
type Message struct {
	Type MessageType `json:"type"`

	Code      string     `json:"code,omitempty"`
	SDP       *SDP       `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`

	// From identifies the sender of a forwarded offer/answer/candidate: the
	// fixed marker "host", or a viewer's session-scoped identifier.
	From string `json:"from,omitempty"`

	ViewerID    *int `json:"viewerId,omitempty"`
	ViewerCount *int `json:"viewerCount,omitempty"`

	// Message carries the human-readable text of an error reply.
	Message string `json:"message,omitempty"`
}

// ParseMessage decodes one inbound frame.
//
// It rejects malformed JSON, unknown fields, trailing data, and known message
// types with missing or contradictory fields. A syntactically valid envelope
// whose type the relay does not route is NOT an error here; the router drops
// it silently, so that probing with unknown types gets no reply.
func ParseMessage(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Message{}, fmt.Errorf("unexpected trailing data")
	}
	if err := msg.validateInbound(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (m Message) validateInbound() error {
	if m.Type == "" {
		return fmt.Errorf("message missing type")
	}

	switch m.Type {
	case MessageTypeCreateSession, MessageTypeJoinSession, MessageTypeOffer, MessageTypeAnswer,
		MessageTypeICECandidate, MessageTypeEndSession, MessageTypeLeaveSession:
		if m.ViewerID != nil || m.ViewerCount != nil || m.Message != "" {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	}

	switch m.Type {
	case MessageTypeCreateSession:
		if m.Code != "" || m.SDP != nil || m.Candidate != nil || m.From != "" {
			return fmt.Errorf("create-session message has unexpected fields")
		}
	case MessageTypeJoinSession, MessageTypeEndSession, MessageTypeLeaveSession:
		if m.Code == "" {
			return fmt.Errorf("%s message missing code", m.Type)
		}
		if m.SDP != nil || m.Candidate != nil || m.From != "" {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case MessageTypeOffer:
		if m.Code == "" {
			return fmt.Errorf("offer message missing code")
		}
		if m.SDP == nil {
			return fmt.Errorf("offer message missing sdp")
		}
		if m.SDP.Type != "offer" {
			return fmt.Errorf("offer message has sdp.type=%q", m.SDP.Type)
		}
		if m.Candidate != nil || m.From != "" {
			return fmt.Errorf("offer message has unexpected fields")
		}
	case MessageTypeAnswer:
		if m.Code == "" {
			return fmt.Errorf("answer message missing code")
		}
		if m.SDP == nil {
			return fmt.Errorf("answer message missing sdp")
		}
		if m.SDP.Type != "answer" {
			return fmt.Errorf("answer message has sdp.type=%q", m.SDP.Type)
		}
		if m.Candidate != nil || m.From != "" {
			return fmt.Errorf("answer message has unexpected fields")
		}
	case MessageTypeICECandidate:
		if m.Code == "" {
			return fmt.Errorf("ice-candidate message missing code")
		}
		if m.Candidate == nil {
			return fmt.Errorf("ice-candidate message missing candidate")
		}
		if m.SDP != nil || m.From != "" {
			return fmt.Errorf("ice-candidate message has unexpected fields")
		}
	default:
		// Unknown or outbound-only types pass parsing; the router decides.
	}
	return nil
}

func errorMessage(text string) Message {
	return Message{Type: MessageTypeError, Message: text}
}

func ptr[T any](v T) *T { return &v }
