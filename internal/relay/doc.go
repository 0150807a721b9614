// Package relay wires accepted connections to the broadcast channel.
//
// One goroutine per accept loop, one goroutine per connection. Publisher
// sessions read packets and publish them fire-and-forget; subscriber
// sessions pull from their own channel subscription and write to the peer.
// A session failing never affects the listeners, the channel, or any other
// session.
package relay
