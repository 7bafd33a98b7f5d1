package types

import (
	"encoding/json"
	"fmt"
)

// ---- UI (front-end) protocol (spec §4.6 / §6) ----

// BackendToFrontendRequest is the disjoint union of requests the attached
// UI may issue to the backend over its persistent link.
type BackendToFrontendRequest struct {
	kind              string
	ListPeerID        uint32
	ListSince         Timestamp
	ListUntil         Timestamp
	MessagePeerID     uint32
	MessageContent    MessageContent
	RetryPeerID       uint32
	PingPeerID        uint32
	EstablishPeerAddr string
}

const (
	kindLinkingRequest           = "LinkingRequest"
	kindListPeerConnections      = "ListPeerConnections"
	kindListMessages             = "ListMessages"
	kindMessagePeer              = "MessagePeer"
	kindRetryUnreceived          = "RetryUnreceived"
	kindPingPeer                 = "PingPeer"
	kindEstablishPeerConnection  = "EstablishPeerConnection"
	kindKillRefresher            = "KillRefresher"
)

// NewLinkingRequest builds the LinkingRequest variant.
func NewLinkingRequest() BackendToFrontendRequest {
	return BackendToFrontendRequest{kind: kindLinkingRequest}
}

// NewListPeerConnections builds the ListPeerConnections variant.
func NewListPeerConnections() BackendToFrontendRequest {
	return BackendToFrontendRequest{kind: kindListPeerConnections}
}

// NewListMessages builds the ListMessages variant.
func NewListMessages(peerID uint32, since, until Timestamp) BackendToFrontendRequest {
	return BackendToFrontendRequest{kind: kindListMessages, ListPeerID: peerID, ListSince: since, ListUntil: until}
}

// NewMessagePeer builds the MessagePeer variant.
func NewMessagePeer(peerID uint32, content MessageContent) BackendToFrontendRequest {
	return BackendToFrontendRequest{kind: kindMessagePeer, MessagePeerID: peerID, MessageContent: content}
}

// NewRetryUnreceived builds the RetryUnreceived variant.
func NewRetryUnreceived(peerID uint32) BackendToFrontendRequest {
	return BackendToFrontendRequest{kind: kindRetryUnreceived, RetryPeerID: peerID}
}

// NewPingPeer builds the PingPeer variant.
func NewPingPeer(peerID uint32) BackendToFrontendRequest {
	return BackendToFrontendRequest{kind: kindPingPeer, PingPeerID: peerID}
}

// NewEstablishPeerConnection builds the EstablishPeerConnection variant.
func NewEstablishPeerConnection(peerAddr string) BackendToFrontendRequest {
	return BackendToFrontendRequest{kind: kindEstablishPeerConnection, EstablishPeerAddr: peerAddr}
}

// NewKillRefresher builds the KillRefresher variant.
func NewKillRefresher() BackendToFrontendRequest {
	return BackendToFrontendRequest{kind: kindKillRefresher}
}

// Kind reports which variant this request holds.
func (r BackendToFrontendRequest) Kind() string { return r.kind }

// IsLinkingRequest reports whether r holds the LinkingRequest variant.
func (r BackendToFrontendRequest) IsLinkingRequest() bool { return r.kind == kindLinkingRequest }

// IsListPeerConnections reports whether r holds the ListPeerConnections variant.
func (r BackendToFrontendRequest) IsListPeerConnections() bool {
	return r.kind == kindListPeerConnections
}

// IsListMessages reports whether r holds the ListMessages variant.
func (r BackendToFrontendRequest) IsListMessages() bool { return r.kind == kindListMessages }

// IsMessagePeer reports whether r holds the MessagePeer variant.
func (r BackendToFrontendRequest) IsMessagePeer() bool { return r.kind == kindMessagePeer }

// IsRetryUnreceived reports whether r holds the RetryUnreceived variant.
func (r BackendToFrontendRequest) IsRetryUnreceived() bool { return r.kind == kindRetryUnreceived }

// IsPingPeer reports whether r holds the PingPeer variant.
func (r BackendToFrontendRequest) IsPingPeer() bool { return r.kind == kindPingPeer }

// IsEstablishPeerConnection reports whether r holds the EstablishPeerConnection variant.
func (r BackendToFrontendRequest) IsEstablishPeerConnection() bool {
	return r.kind == kindEstablishPeerConnection
}

// IsKillRefresher reports whether r holds the KillRefresher variant.
func (r BackendToFrontendRequest) IsKillRefresher() bool { return r.kind == kindKillRefresher }

// PeerID reports the peer_id carried by whichever variant addresses a peer.
// Meaningless on variants that don't carry one.
func (r BackendToFrontendRequest) PeerID() uint32 {
	switch r.kind {
	case kindMessagePeer:
		return r.MessagePeerID
	case kindRetryUnreceived:
		return r.RetryPeerID
	case kindPingPeer:
		return r.PingPeerID
	case kindListMessages:
		return r.ListPeerID
	default:
		return 0
	}
}

func (r BackendToFrontendRequest) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindLinkingRequest, kindListPeerConnections, kindKillRefresher:
		return encode(r.kind, nil)
	case kindListMessages:
		return encode(r.kind, struct {
			PeerID uint32    `json:"peer_id"`
			Since  Timestamp `json:"since"`
			Until  Timestamp `json:"until"`
		}{r.ListPeerID, r.ListSince, r.ListUntil})
	case kindMessagePeer:
		return encode(r.kind, struct {
			PeerID  uint32         `json:"peer_id"`
			Content MessageContent `json:"content"`
		}{r.MessagePeerID, r.MessageContent})
	case kindRetryUnreceived:
		return encode(r.kind, struct {
			PeerID uint32 `json:"peer_id"`
		}{r.RetryPeerID})
	case kindPingPeer:
		return encode(r.kind, struct {
			PeerID uint32 `json:"peer_id"`
		}{r.PingPeerID})
	case kindEstablishPeerConnection:
		return encode(r.kind, struct {
			PeerAddr string `json:"peer_addr"`
		}{r.EstablishPeerAddr})
	default:
		return nil, fmt.Errorf("frontend request: unknown kind %q", r.kind)
	}
}

func (r *BackendToFrontendRequest) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case kindLinkingRequest:
		*r = NewLinkingRequest()
	case kindListPeerConnections:
		*r = NewListPeerConnections()
	case kindKillRefresher:
		*r = NewKillRefresher()
	case kindListMessages:
		var p struct {
			PeerID uint32    `json:"peer_id"`
			Since  Timestamp `json:"since"`
			Until  Timestamp `json:"until"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewListMessages(p.PeerID, p.Since, p.Until)
	case kindMessagePeer:
		var p struct {
			PeerID  uint32         `json:"peer_id"`
			Content MessageContent `json:"content"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewMessagePeer(p.PeerID, p.Content)
	case kindRetryUnreceived:
		var p struct {
			PeerID uint32 `json:"peer_id"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewRetryUnreceived(p.PeerID)
	case kindPingPeer:
		var p struct {
			PeerID uint32 `json:"peer_id"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewPingPeer(p.PeerID)
	case kindEstablishPeerConnection:
		var p struct {
			PeerAddr string `json:"peer_addr"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewEstablishPeerConnection(p.PeerAddr)
	default:
		return fmt.Errorf("frontend request: unknown kind %q", env.Kind)
	}
	return nil
}

// BackendToFrontendResponse is the disjoint union of responses the backend
// sends back to the attached UI.
type BackendToFrontendResponse struct {
	kind        string
	LinkErr     string
	LinkOK      bool
	Connections []Connection
	Messages    []Message
}

const (
	kindLinkingResult          = "LinkingResult"
	kindPeerConnectionsListed  = "PeerConnectionsListed"
	kindMessagesListed         = "MessagesListed"
	kindInvalidRequest         = "InvalidRequest"
)

// NewLinkingResultOK builds a successful LinkingResult.
func NewLinkingResultOK() BackendToFrontendResponse {
	return BackendToFrontendResponse{kind: kindLinkingResult, LinkOK: true}
}

// NewLinkingResultErr builds a failed LinkingResult carrying reason.
func NewLinkingResultErr(reason string) BackendToFrontendResponse {
	return BackendToFrontendResponse{kind: kindLinkingResult, LinkOK: false, LinkErr: reason}
}

// NewPeerConnectionsListed builds the PeerConnectionsListed variant.
func NewPeerConnectionsListed(cs []Connection) BackendToFrontendResponse {
	return BackendToFrontendResponse{kind: kindPeerConnectionsListed, Connections: cs}
}

// NewMessagesListed builds the MessagesListed variant.
func NewMessagesListed(ms []Message) BackendToFrontendResponse {
	return BackendToFrontendResponse{kind: kindMessagesListed, Messages: ms}
}

// NewInvalidRequest builds the InvalidRequest variant.
func NewInvalidRequest() BackendToFrontendResponse {
	return BackendToFrontendResponse{kind: kindInvalidRequest}
}

// Kind reports which variant this response holds.
func (r BackendToFrontendResponse) Kind() string { return r.kind }

// Ok reports the outcome of a LinkingResult variant.
func (r BackendToFrontendResponse) Ok() (bool, string) { return r.LinkOK, r.LinkErr }

func (r BackendToFrontendResponse) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindInvalidRequest:
		return encode(r.kind, nil)
	case kindLinkingResult:
		if r.LinkOK {
			return encode(r.kind, struct {
				Ok bool `json:"ok"`
			}{true})
		}
		return encode(r.kind, struct {
			Ok  bool   `json:"ok"`
			Err string `json:"err"`
		}{false, r.LinkErr})
	case kindPeerConnectionsListed:
		return encode(r.kind, struct {
			Connections []Connection `json:"connections"`
		}{r.Connections})
	case kindMessagesListed:
		return encode(r.kind, struct {
			Messages []Message `json:"messages"`
		}{r.Messages})
	default:
		return nil, fmt.Errorf("frontend response: unknown kind %q", r.kind)
	}
}

func (r *BackendToFrontendResponse) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case kindInvalidRequest:
		*r = NewInvalidRequest()
	case kindLinkingResult:
		var p struct {
			Ok  bool   `json:"ok"`
			Err string `json:"err"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		if p.Ok {
			*r = NewLinkingResultOK()
		} else {
			*r = NewLinkingResultErr(p.Err)
		}
	case kindPeerConnectionsListed:
		var p struct {
			Connections []Connection `json:"connections"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewPeerConnectionsListed(p.Connections)
	case kindMessagesListed:
		var p struct {
			Messages []Message `json:"messages"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewMessagesListed(p.Messages)
	default:
		return fmt.Errorf("frontend response: unknown kind %q", env.Kind)
	}
	return nil
}

// ---- Refresh channel (spec §4.7) ----

// RefreshRequest is the asynchronous, content-free invalidation signal the
// backend pushes to the attached UI.
type RefreshRequest struct {
	kind string
}

const (
	kindRefreshConnection = "Connection"
	kindRefreshMessage    = "Message"
	kindRefreshKill       = "Kill"
)

// RefreshConnection signals that the Connections table changed.
func RefreshConnection() RefreshRequest { return RefreshRequest{kind: kindRefreshConnection} }

// RefreshMessage signals that the Messages table changed.
func RefreshMessage() RefreshRequest { return RefreshRequest{kind: kindRefreshMessage} }

// RefreshKill tells the UI's refresh reader to terminate.
func RefreshKill() RefreshRequest { return RefreshRequest{kind: kindRefreshKill} }

// Kind reports which variant this signal holds.
func (r RefreshRequest) Kind() string { return r.kind }

func (r RefreshRequest) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindRefreshConnection, kindRefreshMessage, kindRefreshKill:
		return encode(r.kind, nil)
	default:
		return nil, fmt.Errorf("refresh request: unknown kind %q", r.kind)
	}
}

func (r *RefreshRequest) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case kindRefreshConnection:
		*r = RefreshConnection()
	case kindRefreshMessage:
		*r = RefreshMessage()
	case kindRefreshKill:
		*r = RefreshKill()
	default:
		return fmt.Errorf("refresh request: unknown kind %q", env.Kind)
	}
	return nil
}

// ---- Initial request dispatch (spec §4.2) ----

// InitialRequest is the first frame read from every accepted socket; it
// decides whether the connection is handled as a peer or a frontend.
type InitialRequest struct {
	isPeer  bool
	Peer    PeerToPeerRequest
	Frontend BackendToFrontendRequest
}

// NewPeerInitialRequest wraps a peer request as an InitialRequest.
func NewPeerInitialRequest(r PeerToPeerRequest) InitialRequest {
	return InitialRequest{isPeer: true, Peer: r}
}

// NewFrontendInitialRequest wraps a frontend request as an InitialRequest.
func NewFrontendInitialRequest(r BackendToFrontendRequest) InitialRequest {
	return InitialRequest{isPeer: false, Frontend: r}
}

// IsPeer reports whether this initial request is the Peer variant.
func (r InitialRequest) IsPeer() bool { return r.isPeer }

const (
	kindInitialPeer     = "Peer"
	kindInitialFrontend = "Frontend"
)

func (r InitialRequest) MarshalJSON() ([]byte, error) {
	if r.isPeer {
		return encode(kindInitialPeer, r.Peer)
	}
	return encode(kindInitialFrontend, r.Frontend)
}

func (r *InitialRequest) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case kindInitialPeer:
		var p PeerToPeerRequest
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewPeerInitialRequest(p)
	case kindInitialFrontend:
		var f BackendToFrontendRequest
		if err := json.Unmarshal(env.Payload, &f); err != nil {
			return err
		}
		*r = NewFrontendInitialRequest(f)
	default:
		return fmt.Errorf("initial request: unknown kind %q", env.Kind)
	}
	return nil
}
