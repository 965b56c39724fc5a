// Package auth holds the credential primitives the control plane builds on:
// bcrypt password hashing for tenant admins and HS256 bearer tokens that bind
// an admin to the organization they administer.
package auth
