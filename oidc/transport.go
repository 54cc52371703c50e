package oidc

import (
	"fmt"
	"io"
	"net/http"
)

// maxResponseSize bounds how much of a provider response body is read.
const maxResponseSize = 1 << 20

// doJSON sends the request and decodes a JSON object response.  Transport
// failures, non-2xx statuses and bodies that aren't a JSON object are
// KindNetwork errors.  A response carrying a top-level "error" member is a
// KindProtocol error.
func doJSON(client *http.Client, req *http.Request) (jsonObject, []byte, error) {
	const op = "doJSON"
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, NewError(ErrHTTPRequestFailed, WithOp(op), WithKind(KindNetwork), WithMsg("%s %s", req.Method, req.URL.Redacted()), WithWrap(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, NewError(ErrHTTPRequestFailed, WithOp(op), WithKind(KindNetwork), WithMsg("unable to read response body"), WithWrap(err))
	}
	obj, decodeErr := decodeObject(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("%s %s returned status %d", req.Method, req.URL.Redacted(), resp.StatusCode)
		if decodeErr == nil {
			if code, desc, ok := obj.errorResponse(); ok {
				msg = fmt.Sprintf("%s with error %q", msg, code)
				if desc != "" {
					msg = fmt.Sprintf("%s: %s", msg, desc)
				}
			}
		}
		return nil, nil, NewError(ErrHTTPRequestFailed, WithOp(op), WithKind(KindNetwork), WithMsg(msg))
	}
	if decodeErr != nil {
		return nil, nil, NewError(ErrInvalidResponse, WithOp(op), WithKind(KindNetwork), WithMsg("unable to parse response body"), WithWrap(decodeErr))
	}
	if code, desc, ok := obj.errorResponse(); ok {
		msg := fmt.Sprintf("error %q", code)
		if desc != "" {
			msg = fmt.Sprintf("%s: %s", msg, desc)
		}
		return nil, nil, NewError(ErrProviderError, WithOp(op), WithKind(KindProtocol), WithMsg(msg))
	}
	return obj, body, nil
}
