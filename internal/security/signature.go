package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	Algorithm     = "HMAC-SHA256"
	SignedHeaders = "content-type;host;x-content-sha256;x-date"

	HeaderDate          = "X-Date"
	HeaderContentSHA256 = "X-Content-Sha256"
	HeaderAuthorization = "Authorization"

	TimestampFormat = "20060102T150405Z"
	DateStampFormat = "20060102"

	contentTypeJSON = "application/json"
	terminator      = "request"
)

var ErrMissingCredentials = errors.New("missing access key or secret key")

// Credentials is an access key pair for the HMAC-signed vendor API.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

func (c Credentials) Valid() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// FormatQuery renders params sorted by key as k=v pairs joined by '&'.
// Values are not escaped: the vendor signs the literal string.
func FormatQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, "&")
}

func HashSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func CanonicalHeaders(contentType, host, payloadHash, xDate string) string {
	return "content-type:" + contentType + "\n" +
		"host:" + host + "\n" +
		"x-content-sha256:" + payloadHash + "\n" +
		"x-date:" + xDate + "\n"
}

func CanonicalRequest(method, uri, query, canonicalHeaders, payloadHash string) string {
	return strings.Join([]string{
		strings.ToUpper(method),
		uri,
		query,
		canonicalHeaders,
		SignedHeaders,
		payloadHash,
	}, "\n")
}

func CredentialScope(dateStamp, region, service string) string {
	return strings.Join([]string{dateStamp, region, service, terminator}, "/")
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

// SigningKey derives the per-day key: HMAC chain over date, region, service, "request".
func SigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte(secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, terminator)
}

func StringToSign(xDate, scope, canonicalRequest string) string {
	return strings.Join([]string{
		Algorithm,
		xDate,
		scope,
		HashSHA256([]byte(canonicalRequest)),
	}, "\n")
}

// Sign returns the hex signature of canonicalRequest at instant t.
// Both the X-Date timestamp and the date stamp are taken from t in UTC.
func Sign(secret string, t time.Time, region, service, canonicalRequest string) string {
	t = t.UTC()
	dateStamp := t.Format(DateStampFormat)
	scope := CredentialScope(dateStamp, region, service)
	key := SigningKey(secret, dateStamp, region, service)
	return hex.EncodeToString(hmacSHA256(key, StringToSign(t.Format(TimestampFormat), scope, canonicalRequest)))
}

func AuthorizationHeader(accessKeyID, scope, signature string) string {
	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		Algorithm, accessKeyID, scope, SignedHeaders, signature)
}

// Signer applies the vendor's HMAC-chain authentication to outgoing requests.
type Signer struct {
	Region  string
	Service string
	// Now is captured once per SignRequest call; nil means time.Now.
	Now func() time.Time
}

func NewSigner(region, service string) *Signer {
	return &Signer{Region: region, Service: service}
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SignRequest sets X-Date, X-Content-Sha256, Content-Type and Authorization on
// req. body must be the exact bytes that will be sent. The canonical host is
// req.Host when set, otherwise the URL host. The canonical query is
// req.URL.RawQuery, which callers build with FormatQuery.
func (s *Signer) SignRequest(req *http.Request, body []byte, creds Credentials) error {
	if !creds.Valid() {
		return ErrMissingCredentials
	}

	t := s.now().UTC()
	xDate := t.Format(TimestampFormat)
	dateStamp := t.Format(DateStampFormat)

	payloadHash := HashSHA256(body)
	uri := req.URL.Path
	if uri == "" {
		uri = "/"
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	headers := CanonicalHeaders(contentTypeJSON, host, payloadHash, xDate)
	canonical := CanonicalRequest(req.Method, uri, req.URL.RawQuery, headers, payloadHash)
	signature := Sign(creds.SecretAccessKey, t, s.Region, s.Service, canonical)
	scope := CredentialScope(dateStamp, s.Region, s.Service)

	req.Header.Set(HeaderDate, xDate)
	req.Header.Set(HeaderContentSHA256, payloadHash)
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set(HeaderAuthorization, AuthorizationHeader(creds.AccessKeyID, scope, signature))
	return nil
}
