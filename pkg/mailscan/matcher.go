package mailscan

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultKeywords are matched case-insensitively against subject and body.
var DefaultKeywords = []string{
	"欠费", "余额不足", "余额预警", "余额告警",
	"即将到期", "已到期", "续费提醒", "续费通知",
	"账单逾期", "缴费通知", "请及时续费", "停机",
	"暂停服务", "服务即将暂停", "充值提醒",
	"overdue", "past due", "payment due", "payment overdue",
	"low balance", "insufficient balance", "balance alert",
	"expiring soon", "expired", "expiration notice",
	"renewal reminder", "renewal notice", "renew now",
	"payment reminder", "payment required", "bill overdue",
	"service suspension", "service suspended", "suspended",
	"recharge reminder", "top up", "account suspended",
	"unpaid invoice", "outstanding balance", "payment failed",
}

// UnknownService is reported when the subject carries no bracketed name.
const UnknownService = "unknown"

var (
	servicePatterns = []*regexp.Regexp{
		regexp.MustCompile(`【(.+?)】`),
		regexp.MustCompile(`\[(.+?)\]`),
		regexp.MustCompile(`（(.+?)）`),
		regexp.MustCompile(`\((.+?)\)`),
	}

	// Tried in order; the first pattern that yields a number wins.
	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`余额[：:]\s*([0-9,]+\.?[0-9]*)\s*元`),
		regexp.MustCompile(`([0-9,]+\.?[0-9]*)\s*元`),
		regexp.MustCompile(`[¥￥]\s*([0-9,]+\.?[0-9]*)`),
		regexp.MustCompile(`CNY\s*([0-9,]+\.?[0-9]*)`),
		regexp.MustCompile(`\$\s*([0-9,]+\.?[0-9]*)`),
	}

	htmlTag    = regexp.MustCompile(`<[^>]+>`)
	htmlScript = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
)

// Matcher holds the lower-cased keyword set.
type Matcher struct {
	keywords []string
}

// NewMatcher builds a matcher from the defaults plus extra, or from extra
// alone when replace is set. Blank and duplicate keywords are ignored.
func NewMatcher(extra []string, replace bool) *Matcher {
	var base []string
	if !replace {
		base = DefaultKeywords
	}
	seen := make(map[string]bool)
	m := &Matcher{}
	for _, list := range [][]string{base, extra} {
		for _, kw := range list {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			m.keywords = append(m.keywords, kw)
		}
	}
	return m
}

// Keywords returns the effective keyword list.
func (m *Matcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

// Match returns every keyword found in subject or body, in keyword order.
func (m *Matcher) Match(subject, body string) []string {
	text := strings.ToLower(subject + "\n" + body)
	var matched []string
	for _, kw := range m.keywords {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// ServiceName extracts the first bracketed name from subject.
func ServiceName(subject string) string {
	for _, re := range servicePatterns {
		if m := re.FindStringSubmatch(subject); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return UnknownService
}

// Amount extracts the first monetary amount from text.
func Amount(text string) (float64, bool) {
	for _, re := range amountPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

// StripHTML removes scripts, styles and tags, collapsing whitespace.
func StripHTML(s string) string {
	s = htmlScript.ReplaceAllString(s, " ")
	s = htmlTag.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
