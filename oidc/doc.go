/*
Package oidc is a relying party engine for the OpenID Connect authorization
code flow.

Primary types provided by the package

* Config: the relying party's view of one provider.  Its client id and secret,
the authorization, token and optional userinfo endpoints, how the client
authenticates to the token endpoint, the scope and the TLS settings used to
reach the provider.

* Request: represents one authentication attempt for a user.  It carries the
state sent in the authorization request, the redirect_uri and an expiration.

* Provider: builds authorization request URLs, detects authorization
responses, exchanges authorization codes, verifies id_tokens and fetches
userinfo claims.

* Tk: the result of a successful code exchange: the access_token, its
token_type, and the id_token along with its verified claims.

* Discover: resolves an account identifier like "alice@example.com" to its
issuer with WebFinger.

Every error returned is an *Err with a Kind (parse, validation, protocol,
network or config) which can be read with KindOf, and a sentinel that can be
matched with errors.Is.

The id_token signature is not verified unless a jwt.KeySet is provided with
WithKeySet.

The oidc/clientassertion package

The clientassertion package signs the client assertions used with the
client_secret_jwt and private_key_jwt token endpoint auth methods.  See
WithClientAssertionJWT.

The oidc/callback package

The callback package includes the ability to create a http.HandlerFunc which can
be used for the 3rd leg of the OIDC flow where the authorization code is
exchanged for tokens.

Examples

* A relying party web application: oidc/examples/rp
*/
package oidc
