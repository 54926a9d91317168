package envelope

// Transport headers that may accompany an enveloped request.
const (
	// HeaderSignature carries codec.SignJSON of the plaintext body.
	HeaderSignature = "X-Veil-Signature"
	// HeaderTimestamp carries the envelope timestamp the signature is bound to.
	HeaderTimestamp = "X-Veil-Timestamp"
)
