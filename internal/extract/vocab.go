package extract

import (
	"regexp"
	"time"
)

// =============================================================================
// Direction vocabulary
// =============================================================================

var (
	// long-term / short-term 은 방향이 아니라 기간 표현
	termPhraseRe = regexp.MustCompile(`(?i)\b(?:long|short|mid)[\s\-]?term\b`)

	longRe  = regexp.MustCompile(`(?i)\b(?:long(?:ing|s)?|buy(?:ing)?|bull(?:ish)?)\b|🟢|📈|🚀|⬆`)
	shortRe = regexp.MustCompile(`(?i)\b(?:short(?:ing|s)?|sell(?:ing)?|bear(?:ish)?)\b|🔴|📉|⬇`)

	// 위치 휴리스틱 허용 조건 (방향 외 거래 용어)
	tradingTermRe = regexp.MustCompile(`(?i)\b(?:signal|setup|entry|target|tp\d?|sl|stop|leverage|lev|trade|position)\b`)
)

// =============================================================================
// Labeled price patterns (label + connector, numbers parsed by scanner)
// =============================================================================

const connector = `\s*(?:[:=@\-–]|\bat\b|\bis\b)?\s*`

var (
	targetLabelRe = regexp.MustCompile(`(?i)(?:\b(?:tp\d?|t\d|tgt\d?|targets?(?:\s*\d\b)?|take[\s\-]?profits?|profit\s+targets?)\b)` + connector)
	stopLabelRe   = regexp.MustCompile(`(?i)(?:\b(?:sl|stop(?:[\s\-]?loss)?|stoploss|invalidation|invalid(?:ated)?(?:\s+(?:below|above))?|cut[\s\-]?loss)\b)` + connector)
	entryLabelRe  = regexp.MustCompile(`(?i)(?:\b(?:entry(?:\s*(?:zone|price|range|area))?|entries|(?:buy|sell)\s*(?:zone|area|range)|ep|open(?:ed)?\s+at)\b|@)` + connector)
	// 약한 진입 라벨: 위 라벨이 하나도 없을 때만 사용
	weakEntryLabelRe = regexp.MustCompile(`(?i)\b(?:at|around|near|from)\b\s*`)

	rangeSepRe = regexp.MustCompile(`^\s*(?:-|–|—|~|\bto\b)\s*`)
	listSepRe  = regexp.MustCompile(`^(?:\s*(?:,|/|\||&|;|-|–|\band\b)\s*|\s+)`)
)

// =============================================================================
// Leverage / timeframe
// =============================================================================

var (
	leverageLabelRe = regexp.MustCompile(`(?i)\b(?:leverage|lev)\s*[:=]?\s*[x×]?\s*(\d{1,3})\s*[x×]?`)
	leverageXRe     = regexp.MustCompile(`(?i)(?:^|[^\w.])(\d{1,3})\s?[x×](?:$|[^\w])|(?:^|[^\w.])[x×](\d{1,3})\b`)

	timeframeLabelRe = regexp.MustCompile(`(?i)\b(?:tf|timeframe|time\s*frame)\s*[:=]?\s*(\d{1,3})\s*(m|mins?|h|hrs?|d|days?|w)\b`)
	timeframeBareRe  = regexp.MustCompile(`(?i)\b(\d{1,3})\s?(m|mins?|h|hrs?|d|w)\b(?:\s*(?:chart|tf|timeframe|candle))?`)
	timeframeWordRe  = regexp.MustCompile(`(?i)\b(scalp(?:ing)?|intraday|day\s*trade|swing|(?:long|short|mid)[\s\-]?term)\b`)
)

// 키워드 기간의 대표 horizon
var timeframeWords = map[string]time.Duration{
	"scalp":      15 * time.Minute,
	"intraday":   6 * time.Hour,
	"day-trade":  6 * time.Hour,
	"short-term": 12 * time.Hour,
	"swing":      72 * time.Hour,
	"mid-term":   7 * 24 * time.Hour,
	"long-term":  30 * 24 * time.Hour,
}

// =============================================================================
// Linguistic features
// =============================================================================

var (
	hypeRe  = regexp.MustCompile(`(?i)\b(?:moon(?:ing)?|guaranteed?|easy\s+money|free\s+money|don'?t\s+miss|last\s+chance|to\s+the\s+moon|1000x|100x|insane\s+gains?|can'?t\s+lose|100%\s+sure)\b|🚀{2,}|💎|🔥{2,}`)
	hedgeRe = regexp.MustCompile(`(?i)\b(?:maybe|might|perhaps|possibly|not\s+sure|could\s+be|risky|nfa|dyor|if\s+it\s+holds)\b`)
)
