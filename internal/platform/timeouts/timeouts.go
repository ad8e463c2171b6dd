// Package timeouts defines shared timeout constants used across the engine.
// Centralizing these values prevents drift between call sites and makes the
// durations discoverable.
package timeouts

import "time"

// CollectionReload caps a full-collection reload against the remote gateway.
const CollectionReload = 10 * time.Second

// Mutation caps a single create/update/delete round trip.
const Mutation = 5 * time.Second

// Bootstrap caps the one-time seed procedure, which touches many rows
// server-side and is the slowest call the engine makes.
const Bootstrap = 20 * time.Second

// IdentityVerify caps a server-side identity verification call.
const IdentityVerify = 5 * time.Second

// SessionRefresh caps a session refresh round trip.
const SessionRefresh = 5 * time.Second
