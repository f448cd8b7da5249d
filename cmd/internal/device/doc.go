// Package device implements Wisata's device registry.
//
// Every login happens through a registered device. Devices are identified by
// a client-generated identifier that is globally unique: once a user owns an
// identifier, no other account may log in with it. Logging in again from a
// known device reactivates it instead of creating a duplicate.
//
// Revoking a device (deactivate + destroy its session) and deleting a device
// are transactional with the session table so a device is never left active
// with a dead session or vice versa.
package device
