package iso7816

// SECURITY COMMAND LOGIC (ISO 7816-4/-8):
//
// MANAGE SECURITY ENVIRONMENT (INS '22') configures the card-side context
// (keys, algorithms) for subsequent cryptographic operations:
// - P1 '41': SET, the data field carries a control reference template whose
//   P2 names the operation it applies to ('B6' digital signature, 'B8'
//   confidentiality/decipherment).
// - P1 'F3': RESTORE, P2 names a stored environment number to reinstate.
//
// PERFORM SECURITY OPERATION (INS '2A') executes the operation itself. For a
// digital signature P1 '9E' marks the response as the signature and P2 '9A'
// marks the data field as the input to be signed.

// Control reference template tags used in MSE SET data fields (ISO 7816-8).
const (
	CRTDigitalSignature byte = 0xB6
	CRTConfidentiality  byte = 0xB8
)

// NewManageSecurityEnvSet creates an MSE SET command for the control
// reference template identified by crt (CRTDigitalSignature or
// CRTConfidentiality), with the template body as data.
func NewManageSecurityEnvSet(cla byte, crt byte, body []byte) *CommandAPDU {
	return NewCommandAPDU(cla, InsManageSecurityEnv, 0x41, crt, body, 0)
}

// NewManageSecurityEnvRestore creates an MSE RESTORE command reinstating the
// stored security environment number num.
func NewManageSecurityEnvRestore(cla byte, num byte) *CommandAPDU {
	return NewCommandAPDU(cla, InsManageSecurityEnv, 0xF3, num, nil, 0)
}

// NewComputeDigitalSignature creates a PSO: COMPUTE DIGITAL SIGNATURE command
// over the given input. The input must already be formatted (hashed/padded)
// as the selected security environment expects.
func NewComputeDigitalSignature(cla byte, input []byte) *CommandAPDU {
	return NewCommandAPDU(cla, InsPerformSecurityOp, 0x9E, 0x9A, input, 0)
}

// NewGetResponse creates a GET RESPONSE command expecting ne bytes.
func NewGetResponse(cla byte, ne int) *CommandAPDU {
	return NewCommandAPDU(cla, InsGetResponse, 0x00, 0x00, nil, ne)
}
