package cloudauth

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"testing"
)

func TestSignDropsEmptyValuesAndSortsKeys(t *testing.T) {
	params := map[string]string{
		"zeta":    "9",
		"alpha":   "1",
		"omitted": "",
	}

	got := sign(params, "secret")

	mac := hmac.New(md5.New, []byte("secret")) //nolint:gosec
	mac.Write([]byte("alpha=1&zeta=9"))
	want := hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Fatalf("sign() = %s, want %s", got, want)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	params := map[string]string{"b": "2", "a": "1"}
	if sign(params, "s") != sign(params, "s") {
		t.Fatal("sign should be deterministic for identical inputs")
	}
}

func TestSignChangesWithSecret(t *testing.T) {
	params := map[string]string{"a": "1"}
	if sign(params, "s1") == sign(params, "s2") {
		t.Fatal("sign output must depend on the client secret")
	}
}
