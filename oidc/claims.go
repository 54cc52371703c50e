package oidc

import (
	"encoding/json"
	"math"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Audience is an id_token "aud" claim, which is either a single string or an
// ordered list of strings.
type Audience struct {
	values []string
	list   bool

	// skipped counts list elements that weren't strings.
	skipped int
}

// NewAudience returns a single string Audience.
func NewAudience(aud string) Audience {
	return Audience{values: []string{aud}}
}

// NewAudienceList returns a list Audience.
func NewAudienceList(auds ...string) Audience {
	return Audience{values: auds, list: true}
}

// IsList reports whether the claim was encoded as a JSON array.
func (a Audience) IsList() bool { return a.list }

// Values returns the audience values in their original order.
func (a Audience) Values() []string {
	return append([]string(nil), a.values...)
}

// Contains reports whether aud is one of the audience values.
func (a Audience) Contains(aud string) bool {
	for _, v := range a.values {
		if v == aud {
			return true
		}
	}
	return false
}

// UnmarshalJSON decodes a string or an array.  Array elements that aren't
// strings are skipped, any other JSON type is an error.
func (a *Audience) UnmarshalJSON(data []byte) error {
	switch typeOfRaw(data) {
	case typeString:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = NewAudience(s)
		return nil
	case typeArray:
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return err
		}
		aud := Audience{values: make([]string, 0, len(elems)), list: true}
		for _, e := range elems {
			var s string
			if typeOfRaw(e) != typeString || json.Unmarshal(e, &s) != nil {
				aud.skipped++
				continue
			}
			aud.values = append(aud.values, s)
		}
		*a = aud
		return nil
	default:
		return ErrInvalidClaimType
	}
}

// MarshalJSON encodes the audience the way it was received.
func (a Audience) MarshalJSON() ([]byte, error) {
	if !a.list && len(a.values) == 1 {
		return json.Marshal(a.values[0])
	}
	return json.Marshal(a.values)
}

// IDTokenClaims are the id_token claims used to authenticate the user.
type IDTokenClaims struct {
	Issuer          string
	Subject         string
	Audience        Audience
	AuthorizedParty *string
	Expiration      time.Time

	raw []byte
}

// Claims unmarshals the complete id_token payload into claims.
func (c *IDTokenClaims) Claims(claims interface{}) error {
	const op = "IDTokenClaims.Claims"
	if claims == nil {
		return NewError(ErrNilParameter, WithOp(op), WithMsg("claims interface is nil"))
	}
	if len(c.raw) == 0 {
		return NewError(ErrNotFound, WithOp(op), WithMsg("no claims payload"))
	}
	if err := json.Unmarshal(c.raw, claims); err != nil {
		return NewError(ErrMalformedToken, WithOp(op), WithKind(KindParse), WithMsg("unable to unmarshal claims"), WithWrap(err))
	}
	return nil
}

// decodeClaims converts the payload into typed claims.  Every member is
// checked for presence and JSON type; values aren't checked.
func decodeClaims(payload jsonObject, raw []byte) (*IDTokenClaims, error) {
	const op = "decodeClaims"
	c := &IDTokenClaims{raw: raw}

	iss, err := payload.stringField("iss")
	if err != nil {
		return nil, NewError(err, WithOp(op), WithKind(KindValidation), WithMsg(`"iss"`))
	}
	c.Issuer = iss

	exp, err := payload.numberField("exp")
	if err != nil {
		return nil, NewError(err, WithOp(op), WithKind(KindValidation), WithMsg(`"exp"`))
	}
	c.Expiration = time.Unix(int64(math.Floor(exp)), 0)

	if payload.has("azp") {
		azp, err := payload.stringField("azp")
		if err != nil {
			return nil, NewError(ErrInvalidAuthorizedParty, WithOp(op), WithKind(KindValidation), WithMsg(`"azp" is not a string`))
		}
		c.AuthorizedParty = &azp
	}

	rawAud, t := payload.lookup("aud")
	if t == typeMissing {
		return nil, NewError(ErrInvalidAudience, WithOp(op), WithKind(KindValidation), WithMsg(`"aud" is missing`))
	}
	if err := c.Audience.UnmarshalJSON(rawAud); err != nil {
		return nil, NewError(ErrInvalidAudience, WithOp(op), WithKind(KindValidation), WithMsg(`"aud" is a %s`, t))
	}

	sub, err := payload.stringField("sub")
	if err != nil {
		return nil, NewError(err, WithOp(op), WithKind(KindValidation), WithMsg(`"sub"`))
	}
	c.Subject = sub

	return c, nil
}

// validateClaims runs the issuer, expiration, authorized party and audience
// checks against the config.
func validateClaims(c *IDTokenClaims, cfg *Config, now time.Time, logger hclog.Logger) error {
	const op = "validateClaims"
	if !issuerMatches(cfg.Issuer, c.Issuer) {
		return NewError(ErrInvalidIssuer, WithOp(op), WithKind(KindValidation),
			WithMsg("received %q but expected %q", c.Issuer, cfg.Issuer))
	}

	if now.Unix() > c.Expiration.Unix() {
		return NewError(ErrExpiredToken, WithOp(op), WithKind(KindValidation),
			WithMsg("exp %d is before now %d", c.Expiration.Unix(), now.Unix()))
	}

	if c.AuthorizedParty != nil && *c.AuthorizedParty != cfg.ClientID {
		return NewError(ErrInvalidAuthorizedParty, WithOp(op), WithKind(KindValidation),
			WithMsg("azp %q does not match client id %q", *c.AuthorizedParty, cfg.ClientID))
	}

	if c.Audience.skipped > 0 {
		logger.Warn("ignoring non-string entries in aud claim", "skipped", c.Audience.skipped)
	}
	if !c.Audience.Contains(cfg.ClientID) {
		return NewError(ErrInvalidAudience, WithOp(op), WithKind(KindValidation),
			WithMsg("client id %q is not in aud %q", cfg.ClientID, c.Audience.values))
	}
	if c.Audience.IsList() && len(c.Audience.values)+c.Audience.skipped > 1 && c.AuthorizedParty == nil {
		logger.Warn("aud claim has multiple entries but azp is not present", "aud", c.Audience.values)
	}
	return nil
}

// issuerMatches reports whether the issuers are equal or differ only by one
// trailing slash on either of them.
func issuerMatches(want, got string) bool {
	return want == got || want == got+"/" || got == want+"/"
}
