package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	numberAtRe = regexp.MustCompile(`^(?:\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?|\.\d+)`)
	numberRe   = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?|\.\d+`)
)

// span 원문 내 [start, end) 구간
type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

type spans []span

func (ss spans) overlaps(s span) bool {
	for _, o := range ss {
		if o.overlaps(s) {
			return true
		}
	}
	return false
}

// number 원문에서 읽은 가격 토큰
type number struct {
	value float64
	span  span
}

// scanNumber reads a price starting at s[i:] after optional spaces.
// 천단위 콤마, k 접미사 허용. 뒤에 문자/%/x 가 붙으면 가격이 아님 (4h, 10x, 5%)
func scanNumber(s string, i int) (number, bool) {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '$') {
		i++
	}
	loc := numberAtRe.FindStringIndex(s[i:])
	if loc == nil {
		return number{}, false
	}
	return finishNumber(s, i, i+loc[1])
}

// finishNumber applies suffix and boundary rules to the digits in s[start:end]
func finishNumber(s string, start, end int) (number, bool) {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(s[:start])
		if unicode.IsLetter(prev) || unicode.IsDigit(prev) || prev == '.' || prev == '×' {
			return number{}, false
		}
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(s[start:end], ",", ""), 64)
	if err != nil {
		return number{}, false
	}

	// k 접미사: 45k, 45.5K (뒤에 글자가 이어지면 단어의 일부)
	j := end
	if j < len(s) && s[j] == ' ' && j+1 < len(s) && (s[j+1] == 'k' || s[j+1] == 'K') {
		j++
	}
	if j < len(s) && (s[j] == 'k' || s[j] == 'K') && !letterAt(s, j+1) {
		return number{value: v * 1000, span: span{start, j + 1}}, true
	}

	if end < len(s) {
		next, _ := utf8.DecodeRuneInString(s[end:])
		if unicode.IsLetter(next) || next == '%' || next == '×' {
			return number{}, false
		}
		// 12:30 같은 시각
		if next == ':' && end+1 < len(s) && isDigit(s[end+1]) {
			return number{}, false
		}
	}
	if start > 0 && s[start-1] == ':' && start >= 2 && isDigit(s[start-2]) {
		return number{}, false
	}
	return number{value: v, span: span{start, end}}, true
}

// scanList reads a separator-delimited run of prices starting at s[i:]
func scanList(s string, i int, limit int) []number {
	first, ok := scanNumber(s, i)
	if !ok {
		return nil
	}
	out := []number{first}
	pos := first.span.end
	for len(out) < limit*2 {
		sep := listSepRe.FindStringIndex(s[pos:])
		if sep == nil {
			break
		}
		n, ok := scanNumber(s, pos+sep[1])
		if !ok {
			break
		}
		out = append(out, n)
		pos = n.span.end
	}
	return out
}

// bareNumbers returns every standalone price in s that is not inside an excluded span
func bareNumbers(s string, exclude spans) []number {
	var out []number
	for _, loc := range numberRe.FindAllStringIndex(s, -1) {
		n, ok := finishNumber(s, loc[0], loc[1])
		if !ok || exclude.overlaps(n.span) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func letterAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
