package protocol

import (
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"
)

func TestMessageTypeCodes(t *testing.T) {
	tests := []struct {
		code MessageTypeCode
		want byte
	}{
		{AUTH, 0x01},
		{AUTH_SUCCESS, 0x02},
		{AUTH_ERROR, 0x03},
		{ACK, 0x21},
		{PING, 0x30},
		{PONG, 0x31},
		{AWARENESS_UPDATE, 0x40},
		{SPACE_JOIN, 0x50},
		{SPACE_JOIN_ACK, 0x51},
		{SPACE_PUSH_DOC_UPDATE, 0x52},
		{ERROR, 0xFF},
	}

	for _, tt := range tests {
		if byte(tt.code) != tt.want {
			t.Errorf("MessageTypeCode %v = %#x, want %#x", tt.code, byte(tt.code), tt.want)
		}
	}
}

func TestBidirectionalMapping(t *testing.T) {
	for code, name := range typeCodeToName {
		gotCode, ok := typeNameToCode[name]
		if !ok {
			t.Errorf("type name %q not found in typeNameToCode", name)
			continue
		}
		if gotCode != code {
			t.Errorf("typeNameToCode[%q] = %#x, want %#x", name, gotCode, code)
		}
	}
}

func TestEncodeMessage(t *testing.T) {
	tests := []struct {
		name        string
		messageType string
		payload     map[string]interface{}
		timestamp   int64
		wantCode    MessageTypeCode
	}{
		{
			name:        "join message",
			messageType: TypeSpaceJoin,
			payload: map[string]interface{}{
				"type":          TypeSpaceJoin,
				"id":            "join-1",
				"spaceType":     SpaceTypeWorkspace,
				"spaceId":       "ws-1",
				"clientVersion": "0.3.0",
			},
			timestamp: 1234567890000,
			wantCode:  SPACE_JOIN,
		},
		{
			name:        "push message",
			messageType: TypeSpacePushDocUpdate,
			payload: map[string]interface{}{
				"type":      TypeSpacePushDocUpdate,
				"id":        "push-1",
				"spaceId":   "ws-1",
				"docId":     "doc-1",
				"update":    EncodeUpdate([]byte{1, 2, 3}),
				"sessionId": "session-1",
			},
			timestamp: 1234567890000,
			wantCode:  SPACE_PUSH_DOC_UPDATE,
		},
		{
			name:        "ping message",
			messageType: TypePing,
			payload:     map[string]interface{}{"type": "ping", "id": "test-123"},
			timestamp:   1234567890000,
			wantCode:    PING,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EncodeMessage(tt.messageType, tt.payload, tt.timestamp)
			if err != nil {
				t.Fatalf("EncodeMessage() error = %v", err)
			}

			if len(result) < 13 {
				t.Fatalf("EncodeMessage() result length = %d, want >= 13", len(result))
			}

			typeCode := MessageTypeCode(result[0])
			if typeCode != tt.wantCode {
				t.Errorf("EncodeMessage() type code = %#x, want %#x", typeCode, tt.wantCode)
			}

			ts := int64(binary.BigEndian.Uint64(result[1:9]))
			if ts != tt.timestamp {
				t.Errorf("EncodeMessage() timestamp = %d, want %d", ts, tt.timestamp)
			}

			payloadLen := binary.BigEndian.Uint32(result[9:13])
			if int(payloadLen) != len(result)-13 {
				t.Errorf("EncodeMessage() payload length = %d, want %d", payloadLen, len(result)-13)
			}

			var decodedPayload map[string]interface{}
			if err := json.Unmarshal(result[13:], &decodedPayload); err != nil {
				t.Errorf("EncodeMessage() payload is not valid JSON: %v", err)
			}
		})
	}
}

func TestDecodeMessage_JSON(t *testing.T) {
	message := []byte(`{"type":"space:join-ack","id":"join-1","timestamp":1234567890000,"clientId":"client-9"}`)

	result, err := DecodeMessage(message)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}

	if result.Type != TypeSpaceJoinAck {
		t.Errorf("DecodeMessage() type = %q, want %q", result.Type, TypeSpaceJoinAck)
	}
	if result.ID != "join-1" {
		t.Errorf("DecodeMessage() ID = %q, want %q", result.ID, "join-1")
	}
	if got := ClientID(result.Payload); got != "client-9" {
		t.Errorf("ClientID() = %q, want %q", got, "client-9")
	}
}

func TestDecodeMessage_RejectsShortMessage(t *testing.T) {
	shortMessage := []byte{0x30, 0x00, 0x00} // Only 3 bytes

	_, err := DecodeMessage(shortMessage)
	if err == nil {
		t.Error("DecodeMessage() expected error for short message, got nil")
	}
}

func TestDecodeMessage_RejectsTruncatedPayload(t *testing.T) {
	// Header says payload is 100 bytes but we only provide 5
	header := make([]byte, 13)
	header[0] = byte(PING)
	binary.BigEndian.PutUint64(header[1:9], 1000)
	binary.BigEndian.PutUint32(header[9:13], 100)

	message := append(header, []byte("short")...)

	_, err := DecodeMessage(message)
	if err == nil {
		t.Error("DecodeMessage() expected error for truncated payload, got nil")
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		messageType string
		payload     map[string]interface{}
	}{
		{
			name:        "ping",
			messageType: TypePing,
			payload:     map[string]interface{}{"type": "ping", "id": "roundtrip-1"},
		},
		{
			name:        "push with correlation id",
			messageType: TypeSpacePushDocUpdate,
			payload: map[string]interface{}{
				"type":      TypeSpacePushDocUpdate,
				"id":        "push-7",
				"spaceType": SpaceTypeUserspace,
				"spaceId":   "user-1",
				"docId":     "doc-42",
				"update":    EncodeUpdate([]byte{0x01, 0x02}),
				"sessionId": "session-7",
				"clientId":  "client-7",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timestamp := time.Now().UnixMilli()

			encoded, err := EncodeMessage(tt.messageType, tt.payload, timestamp)
			if err != nil {
				t.Fatalf("EncodeMessage() error = %v", err)
			}

			decoded, err := DecodeMessage(encoded)
			if err != nil {
				t.Fatalf("DecodeMessage() error = %v", err)
			}

			if decoded.Type != tt.messageType {
				t.Errorf("Round trip type = %q, want %q", decoded.Type, tt.messageType)
			}
			if decoded.Timestamp != timestamp {
				t.Errorf("Round trip timestamp = %d, want %d", decoded.Timestamp, timestamp)
			}
			if wantID, ok := tt.payload["id"].(string); ok && decoded.ID != wantID {
				t.Errorf("Round trip ID = %q, want %q", decoded.ID, wantID)
			}
		})
	}
}

func TestPayloadError(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		want    string
	}{
		{
			name:    "no error",
			payload: map[string]interface{}{"clientId": "c1"},
			want:    "",
		},
		{
			name:    "string error",
			payload: map[string]interface{}{"error": "space not found"},
			want:    "space not found",
		},
		{
			name:    "structured error",
			payload: map[string]interface{}{"error": map[string]interface{}{"message": "forbidden"}},
			want:    "forbidden",
		},
		{
			name:    "structured error without message",
			payload: map[string]interface{}{"error": map[string]interface{}{"code": float64(403)}},
			want:    "unknown error",
		},
		{
			name:    "nil payload",
			payload: nil,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PayloadError(tt.payload)
			if tt.want == "" {
				if err != nil {
					t.Errorf("PayloadError() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("PayloadError() = nil, want message %q", tt.want)
			}
			if err.Message != tt.want {
				t.Errorf("PayloadError().Message = %q, want %q", err.Message, tt.want)
			}
		})
	}
}

func TestAckTimestamp(t *testing.T) {
	if got := AckTimestamp(map[string]interface{}{"timestamp": float64(1700000000123)}); got != 1700000000123 {
		t.Errorf("AckTimestamp() = %d, want 1700000000123", got)
	}
	if got := AckTimestamp(map[string]interface{}{}); got != 0 {
		t.Errorf("AckTimestamp() on empty payload = %d, want 0", got)
	}
}
