// Package keystore persists the proxy's default upstream API key.
//
// Three backends implement Store:
//
//   - EnvStore serves a key taken from configuration (environment or config file)
//     and is read-only.
//   - FileStore keeps the key in a file readable only by the current user.
//   - KeyringStore keeps the key in the OS keyring via github.com/zalando/go-keyring.
//
// Writing an empty key clears it. Reading a store that holds no key returns an empty
// string and no error; whether that is acceptable is the caller's decision.
package keystore
