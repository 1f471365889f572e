// Package auth provides API authentication: Argon2id password
// verification against the configured user list and HS256 JWT access
// tokens. Tokens are validated by signature and expiry alone, so request
// handling never touches the database.
package auth
