package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Auth header names of the Bybit v5 API
const (
	HeaderAPIKey     = "X-BAPI-API-KEY"
	HeaderSign       = "X-BAPI-SIGN"
	HeaderTimestamp  = "X-BAPI-TIMESTAMP"
	HeaderRecvWindow = "X-BAPI-RECV-WINDOW"
)

// Sign returns lowercase hex HMAC-SHA256(secret, timestamp + apiKey + recvWindow + payload).
// payload is the raw query string for GET and the raw JSON body for POST, byte for byte
// what goes on the wire.
func Sign(secret string, timestampMs int64, apiKey string, recvWindow int, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10)))
	mac.Write([]byte(apiKey))
	mac.Write([]byte(strconv.Itoa(recvWindow)))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// AuthHeaders builds the signed headers for one request
func AuthHeaders(apiKey, secret string, recvWindow int, timestampMs int64, payload string) map[string]string {
	return map[string]string{
		HeaderAPIKey:     apiKey,
		HeaderSign:       Sign(secret, timestampMs, apiKey, recvWindow, payload),
		HeaderTimestamp:  strconv.FormatInt(timestampMs, 10),
		HeaderRecvWindow: strconv.Itoa(recvWindow),
	}
}
