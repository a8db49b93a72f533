package interfaces

import "trading-console/src/models"

// -----------------------------------------------------------------------------
// IDataExchanger defines the contract for pushing console state to UI clients.
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// -----------------------------------------------------------------------------
	// Broadcast queues a message for every connected client. It never blocks.
	Broadcast(message *models.MHubMessage)

	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop() error
}
