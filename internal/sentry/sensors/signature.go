package sensors

import "github.com/sentrymesh/nyxsentry/internal/sentry/actuator"

// actuatorSignatureSensor delegates to the platform actuator's
// VerifySignature, since both the signature sensor (§4.1) and the
// actuator contract (§6) describe the same authenticode check.
type actuatorSignatureSensor struct {
	act actuator.Actuator
}

// NewSignatureSensor wraps act as a SignatureSensor.
func NewSignatureSensor(act actuator.Actuator) SignatureSensor {
	return actuatorSignatureSensor{act: act}
}

func (s actuatorSignatureSensor) Probe(path string) (bool, error) {
	return s.act.VerifySignature(path)
}
