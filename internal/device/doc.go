// Package device holds the descriptors of the devices a client talks to.
//
// A Descriptor is normalized once at registration: missing optional fields get
// their defaults (type "outlet", port 6668, version "3.1", 100 ms / 1000 ms
// retry delays, 3 attempts) and the key is turned into a cipher context. The
// Registry resolves a selector to a device, with the empty selector meaning
// the first one registered.
package device
