// Package tuyalocal controls smart plugs that speak the legacy 3.1 local
// protocol over TCP.
//
// A Client is created from one or more device descriptors. Each descriptor
// needs the device id and its 16-byte local key; the IP address can be given
// up front or filled in later by a Discoverer through ResolveIDs.
//
//	client, err := tuyalocal.New([]tuyalocal.Device{
//	    {ID: "bf0123456789abcdef", Key: "0123456789abcdef", IP: "192.168.1.20"},
//	})
//	if err != nil {
//	    return err
//	}
//
//	on, err := client.Get(ctx, "", tuyalocal.GetOptions{})
//	_, err = client.Set(ctx, "", tuyalocal.SetOptions{Set: !on.(bool)})
//
// # Commands
//
// Get sends the plain JSON status command and returns dps["1"], or the whole
// response with GetOptions.Schema. Set encrypts the command with the device
// key (AES, no chaining), signs it, and returns true once the device answers.
// Every call opens its own TCP connection and closes it before returning.
//
// # Errors
//
// Failures are *Error values with a Kind: validation, not found, protocol,
// parse or connection. Use the Is* helpers or errors.As to inspect them.
// Connection errors after a successful connect carry HintBusyDevice, because
// these devices accept only one client at a time.
//
// # Concurrency
//
// Calls to different devices run in parallel. Calls to the same device wait
// for each other; WithCommandRate additionally spaces them out.
package tuyalocal
