package contracts

import "time"

// AdvisoryKind 운영 알림 종류
type AdvisoryKind string

const (
	AdvisoryStrongConsensus    AdvisoryKind = "strong_consensus"
	AdvisoryReputationDegraded AdvisoryKind = "reputation_degraded"
	AdvisoryFeedDegraded       AdvisoryKind = "feed_degraded"
	AdvisoryFeedRecovered      AdvisoryKind = "feed_recovered"
)

// 사람이 읽는 알림 문구
var advisoryMessages = map[AdvisoryKind]string{
	AdvisoryStrongConsensus:    "strong consensus detected",
	AdvisoryReputationDegraded: "source reputation degraded",
	AdvisoryFeedDegraded:       "price feed degraded",
	AdvisoryFeedRecovered:      "price feed recovered",
}

// Advisory 사람이 읽는 알림
type Advisory struct {
	Kind    AdvisoryKind `json:"kind"`
	Subject string       `json:"subject"` // group id, source id, asset
	Message string       `json:"message"`
	At      time.Time    `json:"at"`
}

// NewAdvisory builds an advisory with its canonical message
func NewAdvisory(kind AdvisoryKind, subject string, at time.Time) Advisory {
	return Advisory{Kind: kind, Subject: subject, Message: advisoryMessages[kind], At: at}
}
