// Package security groups the gateway's authentication code. Admin
// endpoints are protected by bcrypt-hashed API keys in package auth;
// customer-facing endpoints authenticate by license key in the gate.
package security
