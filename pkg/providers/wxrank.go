package providers

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
)

const wxRankURL = "http://data.wxrank.com/weixin/score"

var wxRankDigits = regexp.MustCompile(`(\d+)`)

// WxRank reports a credit score. The vendor embeds the number in msg.
type WxRank struct {
	apiKey string
	client *Client
	ep     endpoint
}

// NewWxRank creates a WxRank adapter.
func NewWxRank(apiKey string, client *Client, opts ...Option) *WxRank {
	return &WxRank{apiKey: apiKey, client: client, ep: applyOptions(wxRankURL, opts)}
}

func (p *WxRank) Name() string { return "wxrank" }

func (p *WxRank) FetchBalance(ctx context.Context) (Balance, error) {
	u := p.ep.baseURL + "?" + url.Values{"key": {p.apiKey}}.Encode()
	doc, err := p.client.getJSON(ctx, p.Name(), u, nil)
	if err != nil {
		return Balance{}, err
	}

	code, ok := Path("code").Lookup(doc)
	if n, nerr := parseNumber(code); !ok || nerr != nil || n != 0 {
		msg := stringField(doc, "msg")
		if msg == "" {
			msg = "unknown error"
		}
		return Balance{}, newError(p.Name(), ErrBusiness, "API returned error: %s", msg)
	}

	msg := stringField(doc, "msg")
	if m := wxRankDigits.FindStringSubmatch(msg); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return Balance{Value: v}, nil
		}
	}

	if d, ok := Path("data").Lookup(doc); ok {
		if v, err := parseNumber(d); err == nil {
			return Balance{Value: v}, nil
		}
	}
	v, err := firstNumber(p.Name(), doc, []Accessor{
		Path("data", "score"),
		Path("data", "credits"),
		Path("score"),
		Path("credits"),
	})
	if err != nil {
		return Balance{}, newError(p.Name(), ErrParse, "cannot parse credits from response: %s", msg)
	}
	return Balance{Value: v}, nil
}
