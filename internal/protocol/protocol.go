// Package protocol implements the SyncKit wire protocol as spoken by the Go
// SDK client. The binary framing must match the server implementation exactly:
// server/go/internal/protocol.
package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MessageTypeCode represents binary message type codes (must match server exactly)
type MessageTypeCode byte

const (
	AUTH                  MessageTypeCode = 0x01
	AUTH_SUCCESS          MessageTypeCode = 0x02
	AUTH_ERROR            MessageTypeCode = 0x03
	ACK                   MessageTypeCode = 0x21
	PING                  MessageTypeCode = 0x30
	PONG                  MessageTypeCode = 0x31
	AWARENESS_UPDATE      MessageTypeCode = 0x40
	SPACE_JOIN            MessageTypeCode = 0x50
	SPACE_JOIN_ACK        MessageTypeCode = 0x51
	SPACE_PUSH_DOC_UPDATE MessageTypeCode = 0x52
	ERROR                 MessageTypeCode = 0xFF
)

// MessageType represents string message type names
const (
	TypeAuth        = "auth"
	TypeAuthSuccess = "auth_success"
	TypeAuthError   = "auth_error"

	TypeAck  = "ack"
	TypePing = "ping"
	TypePong = "pong"

	TypeAwarenessUpdate = "awareness_update"

	TypeSpaceJoin          = "space:join"
	TypeSpaceJoinAck       = "space:join-ack"
	TypeSpacePushDocUpdate = "space:push-doc-update"

	TypeError = "error"
)

// Space types a client can join.
const (
	SpaceTypeWorkspace = "workspace"
	SpaceTypeUserspace = "userspace"
)

// Map type codes to type names
var typeCodeToName = map[MessageTypeCode]string{
	AUTH:                  TypeAuth,
	AUTH_SUCCESS:          TypeAuthSuccess,
	AUTH_ERROR:            TypeAuthError,
	ACK:                   TypeAck,
	PING:                  TypePing,
	PONG:                  TypePong,
	AWARENESS_UPDATE:      TypeAwarenessUpdate,
	SPACE_JOIN:            TypeSpaceJoin,
	SPACE_JOIN_ACK:        TypeSpaceJoinAck,
	SPACE_PUSH_DOC_UPDATE: TypeSpacePushDocUpdate,
	ERROR:                 TypeError,
}

// Map type names to type codes
var typeNameToCode = map[string]MessageTypeCode{
	TypeAuth:               AUTH,
	TypeAuthSuccess:        AUTH_SUCCESS,
	TypeAuthError:          AUTH_ERROR,
	TypeAck:                ACK,
	TypePing:               PING,
	TypePong:               PONG,
	TypeAwarenessUpdate:    AWARENESS_UPDATE,
	TypeSpaceJoin:          SPACE_JOIN,
	TypeSpaceJoinAck:       SPACE_JOIN_ACK,
	TypeSpacePushDocUpdate: SPACE_PUSH_DOC_UPDATE,
	TypeError:              ERROR,
}

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	ID        string                 `json:"id"`
	Timestamp int64                  `json:"timestamp"`
	Payload   map[string]interface{} `json:"-"`
}

// NewMessageID generates a random message id for request/ack correlation.
func NewMessageID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// EncodeMessage encodes a message to binary format
// Format: [type:1 byte][timestamp:8 bytes][payload_len:4 bytes][payload:JSON bytes]
func EncodeMessage(messageType string, payload map[string]interface{}, timestamp int64) ([]byte, error) {
	typeCode, ok := typeNameToCode[messageType]
	if !ok {
		typeCode = ERROR
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	payloadLen := uint32(len(payloadJSON))

	// Buffer: 1 (type) + 8 (timestamp) + 4 (length) + payload
	buf := make([]byte, 13+payloadLen)

	buf[0] = byte(typeCode)
	binary.BigEndian.PutUint64(buf[1:9], uint64(timestamp))
	binary.BigEndian.PutUint32(buf[9:13], payloadLen)
	copy(buf[13:], payloadJSON)

	return buf, nil
}

// DecodeMessage decodes a binary or JSON message
func DecodeMessage(data []byte) (*Message, error) {
	// Check if it's JSON (starts with '{' or '[')
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
		}

		message := &Message{
			Payload: msg,
		}

		if t, ok := msg["type"].(string); ok {
			message.Type = t
		}
		if id, ok := msg["id"].(string); ok {
			message.ID = id
		}
		if ts, ok := msg["timestamp"].(float64); ok {
			message.Timestamp = int64(ts)
		}

		return message, nil
	}

	// Binary protocol
	if len(data) < 13 {
		return nil, fmt.Errorf("message too short: %d bytes", len(data))
	}

	typeCode := MessageTypeCode(data[0])
	timestamp := int64(binary.BigEndian.Uint64(data[1:9]))
	payloadLen := binary.BigEndian.Uint32(data[9:13])

	if uint32(len(data)) < 13+payloadLen {
		return nil, fmt.Errorf("incomplete message: expected %d bytes, got %d", 13+payloadLen, len(data))
	}

	payloadBytes := data[13 : 13+payloadLen]
	var payload map[string]interface{}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	typeName, ok := typeCodeToName[typeCode]
	if !ok {
		typeName = TypeError
	}

	message := &Message{
		Type:      typeName,
		Timestamp: timestamp,
		Payload:   payload,
	}

	if id, ok := payload["id"].(string); ok {
		message.ID = id
	}

	return message, nil
}

// ServerError is an application-level rejection carried in an ack payload.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server rejected request: " + e.Message
}

// PayloadError extracts a server rejection from an ack payload. The server
// reports rejections either as a bare string or as {error: {message}}.
func PayloadError(payload map[string]interface{}) *ServerError {
	if payload == nil {
		return nil
	}
	switch v := payload["error"].(type) {
	case string:
		return &ServerError{Message: v}
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return &ServerError{Message: msg}
		}
		return &ServerError{Message: "unknown error"}
	}
	return nil
}

// ClientID pulls the assigned client id out of a join ack payload.
func ClientID(payload map[string]interface{}) string {
	if payload == nil {
		return ""
	}
	if id, ok := payload["clientId"].(string); ok {
		return id
	}
	return ""
}

// AckTimestamp pulls the server timestamp out of a push ack payload.
// Returns 0 when the server omitted it.
func AckTimestamp(payload map[string]interface{}) int64 {
	if payload == nil {
		return 0
	}
	if ts, ok := payload["timestamp"].(float64); ok {
		return int64(ts)
	}
	return 0
}
