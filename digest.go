package authrepo

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultRealm is the protection space shared by every account.  Stored HA1
// values are bound to it, so changing it invalidates all digest verifiers.
const DefaultRealm = "/auth/digest"

// Digest header keys.  ParseDigestHeader produces the wire keys; the host
// adds HeaderMethod and HeaderUserHostAddress from the request.
const (
	HeaderUserName        = "username"
	HeaderRealm           = "realm"
	HeaderNonce           = "nonce"
	HeaderURI             = "uri"
	HeaderResponse        = "response"
	HeaderQop             = "qop"
	HeaderNc              = "nc"
	HeaderCnonce          = "cnonce"
	HeaderOpaque          = "opaque"
	HeaderMethod          = "method"
	HeaderUserHostAddress = "userhostaddress"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CreateHA1 returns MD5(userName:realm:password) in lower case hex.
func CreateHA1(userName, realm, password string) string {
	return md5Hex(userName + ":" + realm + ":" + password)
}

// CreateHA2 returns MD5(method:uri) in lower case hex.
func CreateHA2(method, uri string) string {
	return md5Hex(method + ":" + uri)
}

// CreateAuthResponse computes the expected "response" value for a header set.
func CreateAuthResponse(headers map[string]string, ha1 string) string {
	ha2 := CreateHA2(headers[HeaderMethod], headers[HeaderURI])
	if qop := headers[HeaderQop]; qop != "" {
		return md5Hex(strings.Join([]string{ha1, headers[HeaderNonce], headers[HeaderNc], headers[HeaderCnonce], qop, ha2}, ":"))
	}
	return md5Hex(ha1 + ":" + headers[HeaderNonce] + ":" + ha2)
}

// CreateNonce issues a nonce of the form base64("<unix millis>:<md5 hex>")
// where the hash covers the timestamp, the client address and privateKey.
func CreateNonce(ip, privateKey string, at time.Time) string {
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	return base64.StdEncoding.EncodeToString([]byte(ts + ":" + md5Hex(ts+":"+ip+":"+privateKey)))
}

func decodeNonce(nonce string) (ts int64, hash string, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return 0, "", false
	}
	stamp, hash, found := strings.Cut(string(raw), ":")
	if !found || hash == "" {
		return 0, "", false
	}
	ts, err = strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return ts, hash, true
}

// ValidateNonce reports whether nonce was issued by CreateNonce for ip and privateKey.
func ValidateNonce(nonce, ip, privateKey string) bool {
	ts, hash, ok := decodeNonce(nonce)
	if !ok {
		return false
	}
	stamp := strconv.FormatInt(ts, 10)
	expected := md5Hex(stamp + ":" + ip + ":" + privateKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(hash)) == 1
}

// IsStaleNonce reports whether nonce is older than timeoutSeconds at now.
// Malformed nonces are stale.
func IsStaleNonce(nonce string, timeoutSeconds int, now time.Time) bool {
	ts, _, ok := decodeNonce(nonce)
	if !ok {
		return true
	}
	age := now.Sub(time.UnixMilli(ts))
	return age > time.Duration(timeoutSeconds)*time.Second
}

// ValidateDigestResponse checks a digest header set against a stored HA1.
// sequence is the last nc accepted for this nonce (hex, may be empty); the
// header's nc must be strictly greater.  Any missing or malformed input,
// including a header without qop=auth, fails.
func ValidateDigestResponse(headers map[string]string, privateKey string, nonceTimeoutSeconds int, ha1, sequence string) bool {
	return ValidateDigestResponseAt(headers, privateKey, nonceTimeoutSeconds, ha1, sequence, time.Now())
}

// ValidateDigestResponseAt is ValidateDigestResponse with an explicit clock.
func ValidateDigestResponseAt(headers map[string]string, privateKey string, nonceTimeoutSeconds int, ha1, sequence string, now time.Time) bool {
	if headers == nil || ha1 == "" {
		return false
	}
	for _, key := range []string{HeaderUserName, HeaderNonce, HeaderURI, HeaderResponse, HeaderMethod, HeaderUserHostAddress} {
		if headers[key] == "" {
			return false
		}
	}

	nonce := headers[HeaderNonce]
	if !ValidateNonce(nonce, headers[HeaderUserHostAddress], privateKey) {
		return false
	}
	if IsStaleNonce(nonce, nonceTimeoutSeconds, now) {
		return false
	}

	// Only qop=auth is issued, so the nc counter is always present.
	if headers[HeaderQop] != "auth" || headers[HeaderCnonce] == "" || headers[HeaderNc] == "" {
		return false
	}
	nc, err := strconv.ParseUint(headers[HeaderNc], 16, 64)
	if err != nil {
		return false
	}
	var last uint64
	if sequence != "" {
		if last, err = strconv.ParseUint(sequence, 16, 64); err != nil {
			return false
		}
	}
	if nc <= last {
		return false
	}

	expected := CreateAuthResponse(headers, ha1)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(headers[HeaderResponse]))) == 1
}

// ParseDigestHeader parses an Authorization header value of the form
// `Digest k1="v1", k2=v2`.  Returns nil if the scheme is not Digest.
func ParseDigestHeader(header string) map[string]string {
	scheme, rest, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Digest") {
		return nil
	}

	out := map[string]string{}
	for rest = strings.TrimSpace(rest); rest != ""; rest = strings.TrimSpace(rest) {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(rest[:eq]))
		rest = strings.TrimSpace(rest[eq+1:])

		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil
			}
			value = rest[1 : end+1]
			rest = rest[end+2:]
		} else {
			value, rest, _ = strings.Cut(rest, ",")
			value = strings.TrimSpace(value)
			rest = "," + rest
		}
		out[key] = value

		rest = strings.TrimSpace(rest)
		rest = strings.TrimPrefix(rest, ",")
	}
	return out
}

// DigestChallenge builds a WWW-Authenticate header value.
func DigestChallenge(realm, nonce string, stale bool) string {
	out := fmt.Sprintf(`Digest realm="%s", nonce="%s", qop="auth", algorithm="MD5"`, realm, nonce)
	if stale {
		out += `, stale="true"`
	}
	return out
}
