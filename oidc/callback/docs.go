/*
Package callback provides a callback (in the form of an http.HandlerFunc) for
handling OIDC provider responses to authorization code flow authentication
attempts.
*/
package callback
