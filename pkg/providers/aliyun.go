package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const aliyunURL = "https://business.aliyuncs.com"

// Aliyun queries the account balance with RPC-style HMAC-SHA1 signing.
type Aliyun struct {
	accessKeyID     string
	accessKeySecret string
	client          *Client
	ep              endpoint
}

// NewAliyun creates an Aliyun adapter. credential is "AccessKeyId:AccessKeySecret".
func NewAliyun(credential string, client *Client, opts ...Option) (*Aliyun, error) {
	id, secret, err := splitPair("aliyun", credential, "AccessKeyId:AccessKeySecret")
	if err != nil {
		return nil, err
	}
	return &Aliyun{accessKeyID: id, accessKeySecret: secret, client: client, ep: applyOptions(aliyunURL, opts)}, nil
}

func (p *Aliyun) Name() string { return "aliyun" }

func (p *Aliyun) FetchBalance(ctx context.Context) (Balance, error) {
	params := map[string]string{
		"Action":           "QueryAccountBalance",
		"Version":          "2017-12-14",
		"AccessKeyId":      p.accessKeyID,
		"SignatureMethod":  "HMAC-SHA1",
		"Timestamp":        p.ep.now().UTC().Format("2006-01-02T15:04:05Z"),
		"SignatureVersion": "1.0",
		"SignatureNonce":   uuid.NewString(),
		"Format":           "JSON",
	}
	params["Signature"] = AliyunSignature(params, p.accessKeySecret)

	doc, err := p.client.getJSON(ctx, p.Name(), strings.TrimSuffix(p.ep.baseURL, "/")+"/?"+aliyunCanonical(params), nil)
	if err != nil {
		return Balance{}, err
	}

	accessors := []Accessor{
		Path("Data", "AvailableAmount"),
		Path("AvailableAmount"),
		Path("AvailableCashAmount"),
		Path("Data", "AvailableCashAmount"),
	}
	if code, ok := Path("Code").Lookup(doc); ok {
		if c := stringField(doc, "Code"); c != "Success" && c != "200" {
			return Balance{}, newError(p.Name(), ErrBusiness, "API returned error: %s (Code: %v)", stringField(doc, "Message"), code)
		}
		accessors = accessors[:1]
	}

	v, err := firstNumber(p.Name(), doc, accessors)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Value: v, Currency: "CNY"}, nil
}

// AliyunSignature computes the Signature parameter for params (which must
// not already contain Signature).
func AliyunSignature(params map[string]string, secret string) string {
	stringToSign := "GET&" + aliyunEscape("/") + "&" + aliyunEscape(aliyunCanonical(params))
	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func aliyunCanonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = aliyunEscape(k) + "=" + aliyunEscape(params[k])
	}
	return strings.Join(parts, "&")
}

func aliyunEscape(s string) string {
	s = strictEscape(s)
	s = strings.ReplaceAll(s, "*", "%2A")
	return strings.ReplaceAll(s, "%7E", "~")
}
