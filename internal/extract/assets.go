package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/wonny/signalhub/internal/signalconfig"
)

var assetTokenRe = regexp.MustCompile(`[$#]?[A-Za-z][A-Za-z0-9]*(?:[/\-_:][A-Za-z][A-Za-z0-9]*)?`)

// assetIndex 설정의 자산 테이블을 조회용으로 펼친 것
type assetIndex struct {
	defaultQuote string
	symbols      map[string]bool   // BTC
	aliases      map[string]string // bitcoin -> BTC
	quotes       []string          // 긴 것부터 (USDT 가 USD 보다 먼저)
}

func newAssetIndex(a signalconfig.Assets) *assetIndex {
	idx := &assetIndex{
		defaultQuote: strings.ToUpper(a.DefaultQuote),
		symbols:      make(map[string]bool, len(a.Symbols)),
		aliases:      make(map[string]string),
	}
	for _, s := range a.Symbols {
		sym := strings.ToUpper(s.Symbol)
		idx.symbols[sym] = true
		for _, alias := range s.Aliases {
			idx.aliases[strings.ToLower(alias)] = sym
		}
	}
	for _, q := range a.Quotes {
		idx.quotes = append(idx.quotes, strings.ToUpper(q))
	}
	sort.SliceStable(idx.quotes, func(i, j int) bool { return len(idx.quotes[i]) > len(idx.quotes[j]) })
	return idx
}

func (idx *assetIndex) isQuote(s string) bool {
	s = strings.ToUpper(s)
	for _, q := range idx.quotes {
		if q == s {
			return true
		}
	}
	return false
}

// mention 본문 속 자산 언급 한 건
type mention struct {
	base  string
	quote string // 명시되지 않았으면 ""
	span  span
}

// scan finds asset mentions in textual order.
// 대문자 심볼, $/# 태그(대소문자 무관), 별칭(bitcoin), BASE/QUOTE 또는 BASEQUOTE 결합형을 인식
func (idx *assetIndex) scan(text string) []mention {
	var out []mention
	for _, loc := range assetTokenRe.FindAllStringIndex(text, -1) {
		tok := text[loc[0]:loc[1]]
		tagged := tok[0] == '$' || tok[0] == '#'
		if tagged {
			tok = tok[1:]
		}

		left, right := tok, ""
		if i := strings.IndexAny(tok, "/-_:"); i >= 0 {
			left, right = tok[:i], tok[i+1:]
		}

		base, quote := idx.resolveBase(left, tagged)
		if base == "" {
			continue
		}
		if quote == "" && right != "" && idx.isQuote(right) && base != strings.ToUpper(right) {
			quote = strings.ToUpper(right)
		}
		out = append(out, mention{base: base, quote: quote, span: span{loc[0], loc[1]}})
	}
	return out
}

func (idx *assetIndex) resolveBase(word string, tagged bool) (base, quote string) {
	if tagged || isUpperWord(word) {
		upper := strings.ToUpper(word)
		if idx.symbols[upper] {
			return upper, ""
		}
		// BTCUSDT 결합형
		for _, q := range idx.quotes {
			if len(upper) > len(q) && strings.HasSuffix(upper, q) && idx.symbols[upper[:len(upper)-len(q)]] {
				return upper[:len(upper)-len(q)], q
			}
		}
	}
	if sym, ok := idx.aliases[strings.ToLower(word)]; ok {
		return sym, ""
	}
	return "", ""
}

// pairs collapses mentions into distinct BASE/QUOTE pairs ordered by first mention.
// 같은 base 가 한 번이라도 quote 와 함께 쓰였으면 맨 심볼 언급도 그 pair 로 취급
func (idx *assetIndex) pairs(mentions []mention) []assetSegment {
	explicit := make(map[string]string)
	for _, m := range mentions {
		if m.quote != "" {
			if _, ok := explicit[m.base]; !ok {
				explicit[m.base] = m.quote
			}
		}
	}

	var out []assetSegment
	seen := make(map[string]int)
	for _, m := range mentions {
		quote := m.quote
		if quote == "" {
			if q, ok := explicit[m.base]; ok {
				quote = q
			} else {
				quote = idx.defaultQuote
			}
		}
		pair := m.base + "/" + quote
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = len(out)
		out = append(out, assetSegment{asset: pair, firstAt: m.span.start})
	}
	return out
}

// assetSegment 자산별 본문 구간
type assetSegment struct {
	asset   string
	firstAt int
	text    string
}

// segment assigns each asset the text from its first mention up to the next asset's first mention.
// 첫 자산은 본문 처음부터 시작 (헤더의 방향 표현 포함)
func segment(text string, assets []assetSegment) []assetSegment {
	for i := range assets {
		start := assets[i].firstAt
		if i == 0 {
			start = 0
		}
		end := len(text)
		if i+1 < len(assets) {
			end = assets[i+1].firstAt
		}
		assets[i].text = text[start:end]
	}
	return assets
}

func isUpperWord(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}
