package contracts

import (
	"fmt"
	"time"
)

// RawMessage 소스 어댑터가 전달하는 원문 메시지
// 이미지/미디어는 외부 협력자가 텍스트로 변환한 뒤 들어온다
type RawMessage struct {
	Platform  string    `json:"platform" validate:"required,max=32"`
	SourceID  string    `json:"source_id" validate:"required,max=128"`
	Author    string    `json:"author,omitempty" validate:"max=128"`
	MessageID string    `json:"message_id" validate:"required,max=128"`
	Text      string    `json:"text" validate:"required,max=8192"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// IdempotencyKey 재전송 판별 키 (platform, source, message)
func (m RawMessage) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%s", m.Platform, m.SourceID, m.MessageID)
}
