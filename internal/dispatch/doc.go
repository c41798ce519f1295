// Package dispatch sends one message to a recipient list in fixed-size
// chunks.
//
// A Dispatcher walks the recipients strictly in order, one chunk in flight
// at a time. Each chunk is built and signed, sent, and then:
//   - on success, progress advances and is reported;
//   - on the API's "too many requests" code, the same chunk is rebuilt
//     (fresh timestamp, nonce and signature) and resent after a pause, with
//     no limit on attempts;
//   - on any other API error or a transport failure, the run stops and the
//     error is returned.
package dispatch
