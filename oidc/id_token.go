package oidc

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// IDToken is an oidc id_token in compact serialization.
// See https://openid.net/specs/openid-connect-core-1_0.html#IDToken.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Claims retrieves the IDToken claims.  The token is decoded but neither its
// signature nor its claims are verified.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if len(t) == 0 {
		return NewError(ErrInvalidParameter, WithOp(op), WithMsg("id_token is empty"))
	}
	if claims == nil {
		return NewError(ErrNilParameter, WithOp(op), WithMsg("claims interface is nil"))
	}
	return UnmarshalClaims(string(t), claims)
}

// UnmarshalClaims will retrieve the claims from the provided raw JWT token.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	const op = "UnmarshalClaims"
	parsed, err := parseIDToken(rawToken)
	if err != nil {
		return NewError(ErrMalformedToken, WithOp(op), WithKind(KindParse), WithWrap(err))
	}
	if err := json.Unmarshal(parsed.rawPayload, claims); err != nil {
		return NewError(ErrMalformedToken, WithOp(op), WithKind(KindParse), WithMsg("unable to unmarshal claims"), WithWrap(err))
	}
	return nil
}

// parsedIDToken is an id_token split into its segments, with the header and
// payload decoded.
type parsedIDToken struct {
	header     jsonObject
	payload    jsonObject
	rawPayload []byte

	// signature is located but not decoded or verified here.
	signature string
}

// parseIDToken splits the token at its first two dots and decodes the header
// and payload, which must both be JSON objects.
func parseIDToken(raw string) (*parsedIDToken, error) {
	const op = "parseIDToken"
	parts := strings.SplitN(raw, ".", 3)
	if len(parts) != 3 {
		return nil, NewError(ErrMalformedToken, WithOp(op), WithKind(KindParse), WithMsg("expected 3 segments but got %d", len(parts)))
	}
	rawHeader, err := decodeSegment(parts[0])
	if err != nil {
		return nil, NewError(ErrMalformedToken, WithOp(op), WithKind(KindParse), WithMsg("unable to decode header"), WithWrap(err))
	}
	header, err := decodeObject(rawHeader)
	if err != nil {
		return nil, NewError(ErrMalformedToken, WithOp(op), WithKind(KindParse), WithMsg("unable to parse header"), WithWrap(err))
	}
	rawPayload, err := decodeSegment(parts[1])
	if err != nil {
		return nil, NewError(ErrMalformedToken, WithOp(op), WithKind(KindParse), WithMsg("unable to decode payload"), WithWrap(err))
	}
	payload, err := decodeObject(rawPayload)
	if err != nil {
		return nil, NewError(ErrMalformedToken, WithOp(op), WithKind(KindParse), WithMsg("unable to parse payload"), WithWrap(err))
	}
	return &parsedIDToken{
		header:     header,
		payload:    payload,
		rawPayload: rawPayload,
		signature:  parts[2],
	}, nil
}

// decodeSegment decodes a base64url token segment, with or without padding.
func decodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
}
