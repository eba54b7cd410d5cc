// Package simulator emulates smart plugs speaking the legacy 3.1 protocol.
//
// A Server listens on one TCP address and answers for every configured
// device. Each connection is expected to carry one frame:
//
//   - status frames hold plain JSON; the device is picked by devId or gwId
//   - set frames hold a signed, encrypted payload; the device is the one whose
//     key verifies the signature, and its dps are merged into the state
//
// The answer is a frame with a 4-byte zero return code followed by
// {"devId": ..., "dps": {...}}, which is what real plugs send back.
//
// Behavior settings make the simulator misbehave on purpose: drop the first N
// connections, delay answers, or never answer at all. They exist to exercise
// client retry and timeout handling.
//
//	srv, err := simulator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Listen(); err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Serve(ctx)
package simulator
