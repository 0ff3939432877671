// Package lifecycle ties resources to application lifetime.
//
// A Registry holds Managed resources, starting them in registration order and
// stopping them in reverse. The Environment type bundles a registry with the
// host defaults a REST client builder needs: a serializer, a struct validator,
// and an executor factory. Builders that receive an Environment can derive
// their thread pool from it and have the built client closed automatically at
// shutdown.
//
//	env := lifecycle.NewEnvironment("billing")
//	pool, _ := env.Lifecycle().
//		ExecutorService("rest-client-%s").
//		MinWorkers(2).
//		MaxWorkers(8).
//		WorkQueue(64).
//		Build()
package lifecycle
