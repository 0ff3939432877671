// Package restclient builds configured REST clients.
//
// The Builder accumulates configuration through a fluent API — providers,
// properties, an executor, a serializer, a validator, transport settings, an
// optional connector override — and Build produces an immutable Client bound
// to that configuration. Construction requires either a lifecycle.Environment
// (from which an executor and serializer are derived, and to which the
// client's shutdown is tied) or an explicitly supplied executor and
// serializer pair.
//
//	env := lifecycle.NewEnvironment("billing")
//	client, err := restclient.NewBuilder().
//		Using(restclient.Configuration{}).
//		UsingEnvironment(env).
//		WithProvider(restclient.RequestIDFeature()).
//		Build("payments")
//
// Clients built without an environment must be closed explicitly.
package restclient
