package ports

// Quarantine retains payloads the server permanently rejected.
type Quarantine interface {
	// Retain stores payload under reason. It returns false without error
	// when the retention limit refuses the payload.
	Retain(reason string, payload []byte) (bool, error)
}
