// rp provides the packages a relying party needs to sign users in with an
// OpenID Connect provider using the authorization code flow:
//
//   - oidc: authorization requests, callback detection, code exchange,
//     id_token validation, userinfo and WebFinger issuer discovery
//   - oidc/callback: an http.HandlerFunc for the authorization response
//   - oidc/clientassertion: client assertions for client_secret_jwt and
//     private_key_jwt
//   - jwt: optional id_token signature verification
package rp
