package contracts

import "context"

type AsyncWorker interface {
	// Run starts the consumer loop for the event stream
	Run(ctx context.Context) error
	// ProcessEvent decodes one stream entry, hands it to the gateway hooks,
	// then acknowledges and deletes it.
	ProcessEvent(ctx context.Context, entryID string, rawData []byte) error
}
