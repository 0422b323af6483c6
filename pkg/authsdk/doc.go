// Package authsdk is the client side of the purse auth service.
//
// It carries three things that both ends of the wire agree on:
//
//   - the error codes and their kinds (validation, authentication, state,
//     policy, upstream), so callers never match on message strings;
//   - the request and response bodies of every route;
//   - a typed Client plus Flow, a small state machine that sequences a login
//     from credentials through optional MFA setup or challenge to a session.
//
// Flow performs no I/O. Feed it the results of Client calls and read back the
// state, the per-step error slots and the lock flags.
package authsdk
