// Package mock provides in-memory stand-ins used by the harbor's tests.
//
// Conn implements a robot connection that records every frame written to it
// and can answer through an OnSend hook. MockClock is a controllable Clock
// for components that stamp records with the current time.
package mock
