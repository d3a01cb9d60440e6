package maple

// Transmitter is the callback surface by which the scheduler and pump
// inform an originator of a Transmission's outcome (spec §4.5). All three
// methods are invoked from the owning Main Node's pump goroutine, never
// from an interrupt handler.
type Transmitter interface {
	// TxStarted is called just before the bus driver's write, at most once
	// per Transmission.
	TxStarted(tx *Transmission)
	// TxComplete is called when processEvents yields a valid response frame,
	// or, when no response was expected, once processEvents reports the
	// write complete (with an empty response packet).
	TxComplete(response MaplePacket, tx *Transmission)
	// TxFailed is called on terminal wire failure. writeFailed is true when
	// the failure occurred during the write phase, readFailed otherwise;
	// exactly one is true.
	TxFailed(writeFailed, readFailed bool, tx *Transmission)
}
