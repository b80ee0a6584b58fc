package events

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// StartEmbeddedNATS runs an in-process NATS server, for single-binary
// deployments that have no broker. Port -1 picks a free port. Call
// Shutdown on the returned server when done.
func StartEmbeddedNATS(host string, port int) (*natsserver.Server, error) {
	srv, err := natsserver.NewServer(&natsserver.Options{Host: host, Port: port, NoSigs: true})
	if err != nil {
		return nil, fmt.Errorf("embedded nats: %w", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded nats: not ready after 5s")
	}
	return srv, nil
}
