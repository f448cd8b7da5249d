// Package content serves Wisata's tourism data: destinations, their photo
// and video galleries, and visitor contact messages.
//
// Read endpoints are public; writes require an authenticated session via the
// authapi gateway. Media files themselves live outside this service; rows
// store references only.
package content
