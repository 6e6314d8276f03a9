package cloudauth

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // vendor protocol mandates HMAC-MD5, not a choice made here
	"encoding/hex"
	"sort"
	"strings"
)

// sign computes the vendor's x-serverless-sign header: HMAC-MD5 over the
// params normalized into a sorted, ampersand-joined "k=v" query string,
// empty values dropped, keyed by a fixed client secret.
func sign(params map[string]string, clientSecret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	normalized := strings.Join(pairs, "&")

	mac := hmac.New(md5.New, []byte(clientSecret)) //nolint:gosec
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}
