package dedup

import (
	"math"
	"strings"
	"unicode"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/signalconfig"
)

// 편집 거리 비교 상한 (긴 본문은 앞부분만)
const maxCompareRunes = 512

// normalizeText 소문자, 구두점 제거, 공백 하나로
func normalizeText(s string) []rune {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '/':
			b.WriteRune(r)
			space = false
		default:
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	runes := []rune(strings.TrimSpace(b.String()))
	if len(runes) > maxCompareRunes {
		runes = runes[:maxCompareRunes]
	}
	return runes
}

// levenshteinRatio 1 - distance / max(len). 두 값 모두 비면 1
func levenshteinRatio(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// relDiff 대칭 상대 차이 |a-b| / mean(a,b)
func relDiff(a, b float64) float64 {
	mean := (a + b) / 2
	if mean <= 0 {
		return math.Inf(1)
	}
	return math.Abs(a-b) / mean
}

// classify 두 멤버 사이의 가장 강한 일치 종류. 대칭 함수라 도착 순서와 무관
func classify(a, b *member, cfg signalconfig.Dedup) contracts.MatchKind {
	if a.hasEntry && b.hasEntry {
		diff := relDiff(a.entry, b.entry)
		dt := a.createdAt.Sub(b.createdAt)
		if dt < 0 {
			dt = -dt
		}
		if diff < cfg.ExactEntryTolerance && dt <= cfg.ExactTimeWindow {
			return contracts.MatchExact
		}
	}
	if levenshteinRatio(a.text, b.text) >= cfg.TextSimilarity {
		return contracts.MatchParaphrase
	}
	// 진입가 없는 시그널은 문장 유사도로만 묶임
	if a.hasEntry && b.hasEntry && relDiff(a.entry, b.entry) <= cfg.PartialEntryTolerance {
		return contracts.MatchPartial
	}
	return contracts.MatchNone
}
