// Command loopback-go is a manual E2E harness. It connects to a running
// signal relay as a host and a viewer, negotiates a real WebRTC data channel
// between the two through the relay, echoes a payload over it, then ends the
// session. Prints PASS on success.
//
// Usage:
//
//	RELAY_WS_URL=ws://127.0.0.1:8080/ws go run ./e2e/loopback-go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/castlet/signal-relay/internal/signaling"
)

const overallTimeout = 30 * time.Second

func main() {
	relayURL := envOrDefault("RELAY_WS_URL", "ws://127.0.0.1:8080/ws")

	if err := run(relayURL); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("PASS")
}

type client struct {
	conn *websocket.Conn
	// in carries relay messages; the read loop closes it on disconnect.
	in chan signaling.Message

	// onCandidate, when set, consumes interleaved ice-candidate messages seen
	// while recv waits for something else.
	onCandidate func(signaling.Candidate)
}

func dial(relayURL string) (*client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", relayURL, err)
	}
	c := &client{conn: conn, in: make(chan signaling.Message, 16)}
	go func() {
		defer close(c.in)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg signaling.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			c.in <- msg
		}
	}()
	return c, nil
}

func (c *client) send(msg signaling.Message) error {
	return c.conn.WriteJSON(msg)
}

// recv waits for the next message of the wanted type, failing fast on error
// replies and on relay-side session teardown.
func (c *client) recv(want signaling.MessageType, deadline time.Time) (signaling.Message, error) {
	for {
		select {
		case msg, ok := <-c.in:
			if !ok {
				return signaling.Message{}, fmt.Errorf("connection closed waiting for %s", want)
			}
			if msg.Type == want {
				return msg, nil
			}
			switch msg.Type {
			case signaling.MessageTypeICECandidate:
				if c.onCandidate != nil && msg.Candidate != nil {
					c.onCandidate(*msg.Candidate)
				}
			case signaling.MessageTypeError:
				return signaling.Message{}, fmt.Errorf("relay error while waiting for %s: %s", want, msg.Message)
			case signaling.MessageTypeSessionEnded, signaling.MessageTypeSessionNotFound:
				return signaling.Message{}, fmt.Errorf("got %s while waiting for %s", msg.Type, want)
			}
			// Membership updates may interleave; skip them.
		case <-time.After(time.Until(deadline)):
			return signaling.Message{}, fmt.Errorf("timed out waiting for %s", want)
		}
	}
}

func run(relayURL string) error {
	deadline := time.Now().Add(overallTimeout)

	host, err := dial(relayURL)
	if err != nil {
		return err
	}
	defer host.conn.Close()

	if err := host.send(signaling.Message{Type: signaling.MessageTypeCreateSession}); err != nil {
		return err
	}
	created, err := host.recv(signaling.MessageTypeSessionCreated, deadline)
	if err != nil {
		return err
	}
	code := created.Code
	fmt.Printf("session code %s\n", code)

	viewer, err := dial(relayURL)
	if err != nil {
		return err
	}
	defer viewer.conn.Close()

	if err := viewer.send(signaling.Message{Type: signaling.MessageTypeJoinSession, Code: code}); err != nil {
		return err
	}
	if _, err := host.recv(signaling.MessageTypeCreateOfferForViewer, deadline); err != nil {
		return err
	}

	api := webrtc.NewAPI()

	hostPC, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("host peer connection: %w", err)
	}
	defer hostPC.Close()

	viewerPC, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("viewer peer connection: %w", err)
	}
	defer viewerPC.Close()

	hostPC.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cand := signaling.CandidateFromPion(c.ToJSON())
		_ = host.send(signaling.Message{Type: signaling.MessageTypeICECandidate, Code: code, Candidate: &cand})
	})
	viewerPC.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cand := signaling.CandidateFromPion(c.ToJSON())
		_ = viewer.send(signaling.Message{Type: signaling.MessageTypeICECandidate, Code: code, Candidate: &cand})
	})

	echoed := make(chan string, 1)
	viewerPC.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			_ = dc.Send(msg.Data)
		})
	})

	dc, err := hostPC.CreateDataChannel("loopback", nil)
	if err != nil {
		return fmt.Errorf("data channel: %w", err)
	}
	dc.OnOpen(func() {
		_ = dc.SendText("ping through the relay")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case echoed <- string(msg.Data):
		default:
		}
	})

	offer, err := hostPC.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := hostPC.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	offerSDP := signaling.SDPFromPion(offer)
	if err := host.send(signaling.Message{Type: signaling.MessageTypeOffer, Code: code, SDP: &offerSDP}); err != nil {
		return err
	}

	viewer.onCandidate = func(cand signaling.Candidate) {
		_ = viewerPC.AddICECandidate(cand.ToPion())
	}
	host.onCandidate = func(cand signaling.Candidate) {
		_ = hostPC.AddICECandidate(cand.ToPion())
	}

	relayedOffer, err := viewer.recv(signaling.MessageTypeOffer, deadline)
	if err != nil {
		return err
	}
	remoteOffer, err := relayedOffer.SDP.ToPion()
	if err != nil {
		return err
	}
	if err := viewerPC.SetRemoteDescription(remoteOffer); err != nil {
		return fmt.Errorf("viewer set remote: %w", err)
	}
	answer, err := viewerPC.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := viewerPC.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	answerSDP := signaling.SDPFromPion(answer)
	if err := viewer.send(signaling.Message{Type: signaling.MessageTypeAnswer, Code: code, SDP: &answerSDP}); err != nil {
		return err
	}

	relayedAnswer, err := host.recv(signaling.MessageTypeAnswer, deadline)
	if err != nil {
		return err
	}
	remoteAnswer, err := relayedAnswer.SDP.ToPion()
	if err != nil {
		return err
	}
	if err := hostPC.SetRemoteDescription(remoteAnswer); err != nil {
		return fmt.Errorf("host set remote: %w", err)
	}

	// Late trickle candidates still need to reach the peer connections while
	// we wait for the channel to open.
	go drainCandidates(host)
	go drainCandidates(viewer)

	select {
	case payload := <-echoed:
		fmt.Printf("echo received: %q\n", payload)
	case <-time.After(time.Until(deadline)):
		return fmt.Errorf("timed out waiting for data channel echo")
	}

	return host.send(signaling.Message{Type: signaling.MessageTypeEndSession, Code: code})
}

func drainCandidates(c *client) {
	for msg := range c.in {
		if msg.Type == signaling.MessageTypeICECandidate && c.onCandidate != nil && msg.Candidate != nil {
			c.onCandidate(*msg.Candidate)
		}
	}
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
