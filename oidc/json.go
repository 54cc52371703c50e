package oidc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// valueType is the JSON type of a decoded member.
type valueType int

const (
	typeMissing valueType = iota
	typeNull
	typeBool
	typeNumber
	typeString
	typeArray
	typeObject
	typeInvalid
)

func (v valueType) String() string {
	switch v {
	case typeMissing:
		return "missing"
	case typeNull:
		return "null"
	case typeBool:
		return "boolean"
	case typeNumber:
		return "number"
	case typeString:
		return "string"
	case typeArray:
		return "array"
	case typeObject:
		return "object"
	default:
		return "invalid"
	}
}

// typeOfRaw reports the JSON type of an already decoded (so syntactically
// valid) value from its first significant byte.
func typeOfRaw(raw json.RawMessage) valueType {
	b := bytes.TrimLeft(raw, " \t\r\n")
	if len(b) == 0 {
		return typeMissing
	}
	switch b[0] {
	case '{':
		return typeObject
	case '[':
		return typeArray
	case '"':
		return typeString
	case 't', 'f':
		return typeBool
	case 'n':
		return typeNull
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return typeNumber
	default:
		return typeInvalid
	}
}

// jsonObject is a decoded JSON object whose members are decoded on demand,
// with presence and type checked on every lookup.
type jsonObject map[string]json.RawMessage

// decodeObject decodes data which must hold a single JSON object.
func decodeObject(data []byte) (jsonObject, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("not valid JSON")
	}
	if t := typeOfRaw(data); t != typeObject {
		return nil, fmt.Errorf("JSON %s is not an object", t)
	}
	var o jsonObject
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return o, nil
}

// lookup returns the member's raw value and JSON type, typeMissing when the
// member is absent.
func (o jsonObject) lookup(name string) (json.RawMessage, valueType) {
	raw, ok := o[name]
	if !ok {
		return nil, typeMissing
	}
	return raw, typeOfRaw(raw)
}

// has reports whether the member is present, whatever its type.
func (o jsonObject) has(name string) bool {
	_, ok := o[name]
	return ok
}

// stringField returns the member as a string.  The error is ErrMissingClaim
// when absent and ErrInvalidClaimType when it's not a JSON string.
func (o jsonObject) stringField(name string) (string, error) {
	raw, t := o.lookup(name)
	switch t {
	case typeMissing:
		return "", ErrMissingClaim
	case typeString:
	default:
		return "", ErrInvalidClaimType
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", ErrInvalidClaimType
	}
	return s, nil
}

// numberField returns the member as a float64.  The error is ErrMissingClaim
// when absent and ErrInvalidClaimType when it's not a JSON number.
func (o jsonObject) numberField(name string) (float64, error) {
	raw, t := o.lookup(name)
	switch t {
	case typeMissing:
		return 0, ErrMissingClaim
	case typeNumber:
	default:
		return 0, ErrInvalidClaimType
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || math.IsInf(f, 0) {
		return 0, ErrInvalidClaimType
	}
	return f, nil
}

// arrayField returns the member's raw elements.  The error is ErrMissingClaim
// when absent and ErrInvalidClaimType when it's not a JSON array.
func (o jsonObject) arrayField(name string) ([]json.RawMessage, error) {
	raw, t := o.lookup(name)
	switch t {
	case typeMissing:
		return nil, ErrMissingClaim
	case typeArray:
	default:
		return nil, ErrInvalidClaimType
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, ErrInvalidClaimType
	}
	return elems, nil
}

// errorResponse returns the provider's "error" and optional
// "error_description" members when the object carries an error indication.
func (o jsonObject) errorResponse() (code, desc string, ok bool) {
	if !o.has("error") {
		return "", "", false
	}
	raw, t := o.lookup("error")
	if t == typeString {
		_ = json.Unmarshal(raw, &code)
	} else {
		code = string(raw)
	}
	desc, _ = o.stringField("error_description")
	return code, desc, true
}
