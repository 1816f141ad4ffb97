// Package roster pushes live register changes to staff screens over WebSocket.
//
// Each connection receives a roster.snapshot envelope on connect and then one
// envelope per committed sign-in or sign-out. Slow consumers lose messages
// rather than slowing the register; a client can ask for a fresh snapshot at
// any time.
package roster
