// Package signaling implements the lobby signaling protocol and its WebSocket
// transport.
//
// Every frame is a header line followed by an opaque payload:
//
//	<CODE>: <ARG>\n<PAYLOAD>
//
// Clients send J (join or create), S (seal) and O/A/C (offer, answer,
// candidate addressed to a lobby handle). The server sends I, N, D, J and S
// notices and forwards O/A/C with the sender's handle in place of the
// destination. Any rejected frame closes the connection.
package signaling
