// Package serializer defines the payload serialization contract used by REST
// clients and provides the default JSON implementation.
//
// A Serializer converts between in-memory values and wire payloads. Clients
// built by restclient.Builder use it to encode request bodies and decode
// response bodies; callers can supply their own implementation for other
// payload formats.
package serializer
