// Package local provides an in-process identity.SessionProvider backed by
// its own credential store. It implements the full provider surface —
// password sign-in, OAuth completion, magic links, password resets — without
// a network dependency, which makes it the reference implementation for
// hosts that run their own authentication and the provider examples and
// tests build against.
package local
