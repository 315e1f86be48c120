// Package socketcan provides a linux SocketCAN transport, registered as "socketcan".
// On other platforms the package is empty.
package socketcan
