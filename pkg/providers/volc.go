package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	volcURL         = "https://open.volcengineapi.com"
	volcService     = "billing"
	volcRegion      = "cn-shanghai"
	volcAction      = "QueryBalanceAcct"
	volcVersion     = "2022-01-01"
	volcContentType = "application/json"
	volcSigned      = "content-type;host;x-content-sha256;x-date"
)

// Volc queries the Volcengine billing API with V4-style HMAC-SHA256 signing.
type Volc struct {
	accessKey string
	secretKey string
	client    *Client
	ep        endpoint
}

// NewVolc creates a Volcengine adapter. credential is "AK:SK".
func NewVolc(credential string, client *Client, opts ...Option) (*Volc, error) {
	ak, sk, err := splitPair("volc", credential, "AK:SK")
	if err != nil {
		return nil, err
	}
	return &Volc{accessKey: ak, secretKey: sk, client: client, ep: applyOptions(volcURL, opts)}, nil
}

func (p *Volc) Name() string { return "volc" }

func (p *Volc) FetchBalance(ctx context.Context) (Balance, error) {
	base, err := url.Parse(p.ep.baseURL)
	if err != nil {
		return Balance{}, fmt.Errorf("parse volc base url: %w", err)
	}
	query := volcQuery(map[string]string{"Action": volcAction, "Version": volcVersion})
	headers := p.sign(base.Host, query)

	doc, err := p.client.getJSON(ctx, p.Name(), strings.TrimSuffix(p.ep.baseURL, "/")+"/?"+query, headers)
	if err != nil {
		return Balance{}, err
	}

	if e, ok := Path("ResponseMetadata", "Error").Lookup(doc); ok {
		code := stringField(doc, "ResponseMetadata", "Error", "Code")
		msg := stringField(doc, "ResponseMetadata", "Error", "Message")
		if code == "" && msg == "" {
			msg = fmt.Sprint(e)
		}
		return Balance{}, newError(p.Name(), ErrBusiness, "API returned error: %s %s", code, msg)
	}

	v, err := firstNumber(p.Name(), doc, []Accessor{Path("Result", "AvailableBalance")})
	if err != nil {
		return Balance{}, err
	}
	return Balance{Value: v, Currency: "CNY"}, nil
}

// sign returns the headers for a body-less GET.
func (p *Volc) sign(host, query string) map[string]string {
	xDate := p.ep.now().UTC().Format("20060102T150405Z")
	shortDate := xDate[:8]
	bodyHash := sha256Hex("")

	canonical := strings.Join([]string{
		"GET",
		"/",
		query,
		"content-type:" + volcContentType,
		"host:" + host,
		"x-content-sha256:" + bodyHash,
		"x-date:" + xDate,
		"",
		volcSigned,
		bodyHash,
	}, "\n")

	scope := shortDate + "/" + volcRegion + "/" + volcService + "/request"
	stringToSign := "HMAC-SHA256\n" + xDate + "\n" + scope + "\n" + sha256Hex(canonical)

	key := hmacSHA256([]byte(p.secretKey), shortDate)
	key = hmacSHA256(key, volcRegion)
	key = hmacSHA256(key, volcService)
	key = hmacSHA256(key, "request")
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	return map[string]string{
		"X-Content-Sha256": bodyHash,
		"X-Date":           xDate,
		"Content-Type":     volcContentType,
		"Authorization": fmt.Sprintf("HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
			p.accessKey, scope, volcSigned, signature),
	}
}

// volcQuery sorts and escapes params, keeping only -_.~ unescaped.
func volcQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strictEscape(k) + "=" + strictEscape(params[k])
	}
	return strings.Join(parts, "&")
}

func strictEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
