// Package session implements the vidtube account session lifecycle:
// register, login, refresh rotation, logout, password change and access-token
// authentication.
//
// Each account holds at most one refresh token. Login replaces it, refresh
// rotates it through a conditional directory update, logout clears it. Access
// tokens are stateless HS256 JWTs; refresh tokens are JWTs signed with a separate
// secret whose digest is stored on the account.
//
// Every error returned by Service matches one of the kind sentinels.
package session
