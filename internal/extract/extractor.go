package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/signalconfig"
)

// DropReason 자산은 찾았지만 Draft 를 만들지 못한 이유
type DropReason string

const (
	DropNoDirection          DropReason = "no_direction"
	DropConflictingDirection DropReason = "conflicting_direction"
)

// Drop 버려진 후보
type Drop struct {
	Asset  string
	Reason DropReason
}

// Result 메시지 한 건의 추출 결과
type Result struct {
	Drafts  []contracts.Draft
	Dropped []Drop
}

// Extractor 자유 텍스트에서 Draft 를 뽑는 규칙 기반 추출기
// 오류를 반환하지 않음: 못 찾으면 빈 결과
type Extractor struct {
	assets     *assetIndex
	stopPct    float64
	maxTargets int
}

// New creates an extractor bound to the asset table and extraction settings of cfg
func New(cfg *signalconfig.Config) *Extractor {
	return &Extractor{
		assets:     newAssetIndex(cfg.Assets),
		stopPct:    cfg.Extraction.DefaultStopPct,
		maxTargets: cfg.Extraction.MaxTargets,
	}
}

// Normalize applies NFKC so full-width digits and compatibility symbols read as ASCII
func Normalize(text string) string {
	return norm.NFKC.String(text)
}

// Extract returns one draft per distinct asset mentioned in text, in order of first mention
func (e *Extractor) Extract(text string) Result {
	text = Normalize(text)

	mentions := e.assets.scan(text)
	if len(mentions) == 0 {
		return Result{}
	}
	segs := segment(text, e.assets.pairs(mentions))
	features := linguistic(text)

	var res Result
	for _, seg := range segs {
		dir, conflict := resolveDirection(seg.text)
		if dir == "" && !conflict && len(segs) > 1 {
			// 방향이 메시지 공통 헤더에만 있는 경우
			dir, conflict = resolveDirection(text)
		}
		switch {
		case conflict:
			res.Dropped = append(res.Dropped, Drop{Asset: seg.asset, Reason: DropConflictingDirection})
			continue
		case dir == "":
			res.Dropped = append(res.Dropped, Drop{Asset: seg.asset, Reason: DropNoDirection})
			continue
		}

		d := contracts.Draft{Asset: seg.asset, Direction: dir, Features: features}
		e.fill(&d, seg.text, text)
		res.Drafts = append(res.Drafts, d)
	}
	return res
}

// fill extracts prices, leverage and timeframe from the asset segment
func (e *Extractor) fill(d *contracts.Draft, seg, whole string) {
	var claimed spans

	lev, levSpans := leverage(seg)
	if lev == nil && seg != whole {
		lev, _ = leverage(whole)
	}
	d.Leverage = lev
	claimed = append(claimed, levSpans...)

	tf, tfSpans := timeframe(seg)
	if tf == nil && seg != whole {
		tf, _ = timeframe(whole)
	}
	d.Timeframe = tf
	claimed = append(claimed, tfSpans...)

	p := e.labeled(seg, claimed)
	switch {
	case !p.any() && hasTradingKeyword(seg):
		p = positional(d.Direction, bareNumbers(seg, p.claimed))
		d.Features.Positional = p.any()
	case p.any() && p.entry == nil:
		// "BTC long 45000 tp 46500": 라벨 없는 첫 가격을 진입가로
		if nums := bareNumbers(seg, p.claimed); len(nums) > 0 {
			z := contracts.SinglePrice(nums[0].value)
			p.entry = &z
			d.Features.Positional = true
		}
	}

	d.Entry = p.entry
	d.Stop = p.stop
	d.Targets = orderTargets(d.Direction, p.targets, e.maxTargets)
	d.Features.LabeledFields = p.labeled

	if d.Entry != nil && len(d.Targets) > 0 && d.Stop == nil {
		d.Stop = contracts.Float(synthesizeStop(d.Direction, *d.Entry, e.stopPct))
		d.StopSynthesized = true
	}
}

// prices 가격 추출 중간 결과
type prices struct {
	entry   *contracts.PriceZone
	targets []float64
	stop    *float64
	labeled int
	claimed spans
}

func (p prices) any() bool {
	return p.entry != nil || len(p.targets) > 0 || p.stop != nil
}

// labeled runs the label patterns in priority order.
// 먼저 잡힌 구간은 이후 패턴이 다시 쓰지 않음 (TP @ 46500 의 @ 가 진입가로 읽히지 않도록)
func (e *Extractor) labeled(seg string, claimed spans) prices {
	p := prices{claimed: claimed}

	// === Targets ===
	for _, loc := range targetLabelRe.FindAllStringIndex(seg, -1) {
		if p.claimed.overlaps(span{loc[0], loc[1]}) {
			continue
		}
		nums := scanList(seg, loc[1], e.maxTargets)
		for _, n := range nums {
			if p.claimed.overlaps(n.span) {
				break
			}
			p.targets = append(p.targets, n.value)
			p.claimed = append(p.claimed, span{loc[0], n.span.end})
		}
	}
	if len(p.targets) > 0 {
		p.labeled++
	}

	// === Stop ===
	for _, loc := range stopLabelRe.FindAllStringIndex(seg, -1) {
		if p.claimed.overlaps(span{loc[0], loc[1]}) {
			continue
		}
		if n, ok := scanNumber(seg, loc[1]); ok && !p.claimed.overlaps(n.span) {
			p.stop = contracts.Float(n.value)
			p.claimed = append(p.claimed, span{loc[0], n.span.end})
			p.labeled++
			break
		}
	}

	// === Entry (range > single > weak label) ===
	if zone, sp, ok := scanEntry(seg, entryLabelRe, p.claimed); ok {
		p.entry = &zone
		p.claimed = append(p.claimed, sp)
		p.labeled++
	} else if zone, sp, ok := scanEntry(seg, weakEntryLabelRe, p.claimed); ok {
		p.entry = &zone
		p.claimed = append(p.claimed, sp)
	}
	return p
}

func scanEntry(seg string, label *regexp.Regexp, claimed spans) (contracts.PriceZone, span, bool) {
	for _, loc := range label.FindAllStringIndex(seg, -1) {
		if claimed.overlaps(span{loc[0], loc[1]}) {
			continue
		}
		first, ok := scanNumber(seg, loc[1])
		if !ok || claimed.overlaps(first.span) {
			continue
		}
		zone := contracts.SinglePrice(first.value)
		end := first.span.end
		if sep := rangeSepRe.FindStringIndex(seg[end:]); sep != nil {
			if second, ok := scanNumber(seg, end+sep[1]); ok && !claimed.overlaps(second.span) {
				zone = contracts.NewZone(first.value, second.value)
				end = second.span.end
			}
		}
		return zone, span{loc[0], end}, true
	}
	return contracts.PriceZone{}, span{}, false
}

// positional assigns unlabeled prices by their relative order.
// LONG: 최저 = 손절, 최고 = 목표, 나머지 = 진입 (SHORT 는 반대)
func positional(dir contracts.Direction, nums []number) prices {
	var p prices
	// 숫자 하나로는 역할을 정할 수 없음
	if len(nums) < 2 {
		return p
	}
	if len(nums) > 5 {
		nums = nums[:5]
	}
	vals := make([]float64, len(nums))
	for i, n := range nums {
		vals[i] = n.value
	}

	sort.Float64s(vals)
	lo, hi := vals[0], vals[len(vals)-1]
	if lo == hi {
		z := contracts.SinglePrice(lo)
		p.entry = &z
		return p
	}

	if len(vals) == 2 {
		entry, target := lo, hi
		if dir == contracts.DirectionShort {
			entry, target = hi, lo
		}
		z := contracts.SinglePrice(entry)
		p.entry = &z
		p.targets = []float64{target}
		return p
	}

	middle := vals[1 : len(vals)-1]
	var z contracts.PriceZone
	if len(middle) == 2 {
		z = contracts.NewZone(middle[0], middle[1])
	} else {
		z = contracts.SinglePrice(middle[len(middle)/2])
	}
	p.entry = &z
	if dir == contracts.DirectionShort {
		p.stop = contracts.Float(hi)
		p.targets = []float64{lo}
	} else {
		p.stop = contracts.Float(lo)
		p.targets = []float64{hi}
	}
	return p
}

// orderTargets sorts targets nearest-first for the direction and drops duplicates
func orderTargets(dir contracts.Direction, targets []float64, limit int) []float64 {
	if len(targets) == 0 {
		return nil
	}
	out := make([]float64, 0, len(targets))
	seen := make(map[float64]bool, len(targets))
	for _, t := range targets {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if dir == contracts.DirectionShort {
		sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	} else {
		sort.Float64s(out)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// synthesizeStop places a stop pct away from entry on the side opposite the target
func synthesizeStop(dir contracts.Direction, entry contracts.PriceZone, pct float64) float64 {
	if dir == contracts.DirectionShort {
		return entry.High * (1 + pct)
	}
	return entry.Low * (1 - pct)
}

// resolveDirection 구간 안의 방향 어휘를 찾음. 양쪽 모두 있으면 conflict
func resolveDirection(text string) (contracts.Direction, bool) {
	clean := termPhraseRe.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
	long := longRe.MatchString(clean)
	short := shortRe.MatchString(clean)
	switch {
	case long && short:
		return "", true
	case long:
		return contracts.DirectionLong, false
	case short:
		return contracts.DirectionShort, false
	}
	return "", false
}

func hasTradingKeyword(seg string) bool {
	dir, conflict := resolveDirection(seg)
	return dir != "" || conflict || tradingTermRe.MatchString(seg)
}

// leverage reads an explicit leverage (lev 10, 10x, x10)
func leverage(text string) (*int, spans) {
	if m := leverageLabelRe.FindStringSubmatchIndex(text); m != nil {
		if v, err := strconv.Atoi(text[m[2]:m[3]]); err == nil {
			return contracts.Int(v), spans{{m[0], m[1]}}
		}
	}
	for _, m := range leverageXRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if start < 0 {
			start, end = m[4], m[5]
		}
		if v, err := strconv.Atoi(text[start:end]); err == nil {
			return contracts.Int(v), spans{{m[0], m[1]}}
		}
	}
	return nil, nil
}

// timeframe reads a labeled or bare duration tag, then trading-style words
func timeframe(text string) (*contracts.Timeframe, spans) {
	if m := timeframeLabelRe.FindStringSubmatchIndex(text); m != nil {
		if tf, ok := durationTag(text[m[2]:m[3]], text[m[4]:m[5]]); ok {
			return tf, spans{{m[0], m[1]}}
		}
	}
	if m := timeframeBareRe.FindStringSubmatchIndex(text); m != nil {
		if tf, ok := durationTag(text[m[2]:m[3]], text[m[4]:m[5]]); ok {
			return tf, spans{{m[0], m[1]}}
		}
	}
	if m := timeframeWordRe.FindStringSubmatch(text); m != nil {
		tag := wordTag(m[1])
		if h, ok := timeframeWords[tag]; ok {
			return &contracts.Timeframe{Tag: tag, Horizon: h}, nil
		}
	}
	return nil, nil
}

func durationTag(count, unit string) (*contracts.Timeframe, bool) {
	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return nil, false
	}
	var (
		u    string
		base time.Duration
	)
	switch strings.ToLower(unit) {
	case "m", "min", "mins":
		u, base = "m", time.Minute
	case "h", "hr", "hrs":
		u, base = "h", time.Hour
	case "d", "day", "days":
		u, base = "d", 24*time.Hour
	case "w":
		u, base = "w", 7*24*time.Hour
	default:
		return nil, false
	}
	return &contracts.Timeframe{Tag: count + u, Horizon: time.Duration(n) * base}, true
}

func wordTag(word string) string {
	w := strings.ToLower(word)
	switch {
	case strings.HasPrefix(w, "scalp"):
		return "scalp"
	case strings.HasPrefix(w, "day"):
		return "day-trade"
	case strings.HasPrefix(w, "long"):
		return "long-term"
	case strings.HasPrefix(w, "short"):
		return "short-term"
	case strings.HasPrefix(w, "mid"):
		return "mid-term"
	}
	return w
}

// linguistic 과장/유보 표현 수 (라벨 수는 가격 추출 후 채움)
func linguistic(text string) contracts.LinguisticFeatures {
	return contracts.LinguisticFeatures{
		HypeTerms:  len(hypeRe.FindAllStringIndex(text, -1)),
		HedgeTerms: len(hedgeRe.FindAllStringIndex(text, -1)),
	}
}
