// Package serial implements the connection and discovery ports on top of
// go.bug.st/serial.
package serial
