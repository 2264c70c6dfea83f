package contracts

import "time"

// PriceTick 시세 한 건 (저장하지 않음)
type PriceTick struct {
	Asset     string    `json:"asset"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // 응답한 제공자
}

// Valid 사용 가능한 시세인지
func (t PriceTick) Valid() bool {
	return t.Price > 0 && !t.Timestamp.IsZero()
}
