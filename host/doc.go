// Package host runs sandboxed guest modules and serves their side of the
// module boundary.
//
// A Host owns the bytecode engine, the instance registry and the log
// forwarder. Every loaded module becomes an Instance: an id assigned during
// the load handshake, checked access to the module's linear memory, the
// guest allocator exports and an exclusive token serializing every call
// into the guest. Guests invoke host services through a Dispatcher; replies
// are queued on the instance and delivered once the guest is idle.
package host
