package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/signalhub/internal/contracts"
)

// Parser 플랫폼별 원문 정리기
// 마크업/링크/멘션을 걷어내고 추출기가 읽을 평문만 남긴다
type Parser interface {
	Name() string
	Clean(text string) string
}

// Registry platform -> Parser 매핑 (전역 상태 없이 값으로 주입)
type Registry struct {
	extractor *Extractor
	parsers   map[string]Parser
	fallback  Parser
}

// NewRegistry creates a registry with the built-in chat, social and web feed parsers
func NewRegistry(ext *Extractor) *Registry {
	r := &Registry{
		extractor: ext,
		parsers:   make(map[string]Parser),
		fallback:  PlainParser{},
	}
	for _, p := range []string{"telegram", "discord", "slack"} {
		r.Register(p, ChatParser{})
	}
	for _, p := range []string{"twitter", "x", "reddit", "stocktwits"} {
		r.Register(p, SocialParser{})
	}
	for _, p := range []string{"rss", "web", "blog"} {
		r.Register(p, WebFeedParser{})
	}
	return r
}

// Register binds a parser to a platform tag (case-insensitive), replacing any existing one
func (r *Registry) Register(platform string, p Parser) {
	r.parsers[strings.ToLower(platform)] = p
}

// ParserFor returns the parser for platform or the plain fallback
func (r *Registry) ParserFor(platform string) Parser {
	if p, ok := r.parsers[strings.ToLower(platform)]; ok {
		return p
	}
	return r.fallback
}

// Extract cleans the message with its platform parser and runs the extractor
func (r *Registry) Extract(msg contracts.RawMessage) Result {
	return r.extractor.Extract(r.ParserFor(msg.Platform).Clean(msg.Text))
}

// =============================================================================
// Parsers
// =============================================================================

// PlainParser 아무것도 하지 않음
type PlainParser struct{}

func (PlainParser) Name() string             { return "plain" }
func (PlainParser) Clean(text string) string { return text }

var (
	chatMarkupRe  = regexp.MustCompile("\\*\\*|__|~~|\\|\\||`+")
	chatQuoteRe   = regexp.MustCompile(`(?m)^\s*>+\s?`)
	chatEmojiRe   = regexp.MustCompile(`<a?:\w+:\d+>`)
	socialURLRe   = regexp.MustCompile(`https?://\S+`)
	socialUserRe  = regexp.MustCompile(`(^|\s)@[A-Za-z_][A-Za-z0-9_]*`)
	socialRetweet = regexp.MustCompile(`^RT\s+:?`)
)

// ChatParser 텔레그램/디스코드 마크다운
type ChatParser struct{}

func (ChatParser) Name() string { return "chat" }

func (ChatParser) Clean(text string) string {
	text = chatEmojiRe.ReplaceAllString(text, " ")
	text = chatMarkupRe.ReplaceAllString(text, "")
	return chatQuoteRe.ReplaceAllString(text, "")
}

// SocialParser 트윗/게시글: URL, 사용자 멘션 제거 ($BTC, #ETH 태그는 유지)
type SocialParser struct{}

func (SocialParser) Name() string { return "social" }

func (SocialParser) Clean(text string) string {
	text = html.UnescapeString(text)
	text = socialRetweet.ReplaceAllString(text, "")
	text = socialURLRe.ReplaceAllString(text, " ")
	return socialUserRe.ReplaceAllString(text, "$1")
}

// WebFeedParser RSS/블로그 HTML 본문
type WebFeedParser struct{}

func (WebFeedParser) Name() string { return "webfeed" }

func (WebFeedParser) Clean(text string) string {
	if !strings.Contains(text, "<") {
		return html.UnescapeString(text)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	// 블록 요소 경계가 한 줄로 붙지 않도록
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote").AppendHtml("\n")
	return strings.TrimSpace(doc.Text())
}
