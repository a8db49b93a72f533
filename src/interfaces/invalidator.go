package interfaces

// -----------------------------------------------------------------------------
// IInvalidator is the request/response cache seen from the stream:
// it only learns which keys went stale.
// -----------------------------------------------------------------------------

type IInvalidator interface {
	Invalidate(key string)
}
