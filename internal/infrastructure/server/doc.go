// Package server assembles the remote host channel: a gin router with
// recovery, request ids, tracing, metrics, CORS and rate limiting in front
// of the op routes and the WebSocket endpoint.
//
// Lifecycle:
//  1. Load configuration from the environment
//  2. Build the registry, executor loop and op state
//  3. Register middleware and routes
//  4. Serve until the context is cancelled
//  5. Shut down HTTP, then close the channel and its resources
//
//	srv, err := server.NewServer(cfg, server.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer srv.Close()
//	return srv.Run(ctx)
package server
